package baseline

import (
	"testing"

	"github.com/shblue21/ntomb/pkg/inventory"
	"github.com/shblue21/ntomb/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pidp(v int32) *int32 { return &v }

func strp(v string) *string { return &v }

func snapshot() []inventory.Connection {
	return []inventory.Connection{
		{Pid: pidp(100), RemoteAddr: "8.8.8.8", RemotePort: 443, State: "ESTABLISHED"},
		{Pid: pidp(200), RemoteAddr: "1.1.1.1", RemotePort: 53, State: "ESTABLISHED"},
		// Listener without a remote side, placeholder remote, and a
		// duplicate identity.
		{Pid: pidp(300), State: "LISTEN", LocalPort: 22},
		{RemoteAddr: "0.0.0.0", RemotePort: 0, State: "TIME_WAIT"},
		{Pid: pidp(100), RemoteAddr: "8.8.8.8", RemotePort: 443},
	}
}

func TestDiffIdentityBaseline(t *testing.T) {
	base := Baseline{
		ExpectedPIDs:      []int32{100, 200, 300},
		ExpectedEndpoints: []string{"8.8.8.8:443", "1.1.1.1:53"},
	}

	report := Diff(snapshot(), base, rules.NewStore())

	assert.Empty(t, report.NewPIDs)
	assert.Empty(t, report.NewEndpoints)
	assert.Empty(t, report.NewConnections)
	assert.Equal(t, 3, report.CurrentPIDCount)
	assert.Equal(t, 2, report.CurrentEndpointCount)
}

func TestDiffDetectsNewPIDAndEndpoint(t *testing.T) {
	base := Baseline{
		ExpectedPIDs:      []int32{100, 300},
		ExpectedEndpoints: []string{"8.8.8.8:443"},
	}

	report := Diff(snapshot(), base, rules.NewStore())

	assert.Equal(t, []int32{200}, report.NewPIDs)
	assert.Equal(t, []string{"1.1.1.1:53"}, report.NewEndpoints)

	// The connection owning pid 200 is also the one with the new
	// endpoint, so it is reported once although it qualifies twice.
	require.Len(t, report.NewConnections, 1)
	assert.Equal(t, "1.1.1.1", report.NewConnections[0].Connection.RemoteAddr)
}

func TestDiffAbsentBaselinePartsFlagNothing(t *testing.T) {
	t.Run("NoPIDBaseline", func(t *testing.T) {
		base := Baseline{ExpectedEndpoints: []string{"8.8.8.8:443"}}
		report := Diff(snapshot(), base, rules.NewStore())

		assert.Empty(t, report.NewPIDs, "Without expected pids no pid is ever new")
		assert.Equal(t, []string{"1.1.1.1:53"}, report.NewEndpoints)
	})

	t.Run("NoEndpointBaseline", func(t *testing.T) {
		base := Baseline{ExpectedPIDs: []int32{100}}
		report := Diff(snapshot(), base, rules.NewStore())

		assert.Empty(t, report.NewEndpoints, "Without expected endpoints no endpoint is ever new")
		assert.Equal(t, []int32{200, 300}, report.NewPIDs)
	})

	t.Run("EmptyBaseline", func(t *testing.T) {
		report := Diff(snapshot(), Baseline{}, rules.NewStore())

		assert.Empty(t, report.NewPIDs)
		assert.Empty(t, report.NewEndpoints)
		assert.Empty(t, report.NewConnections)
	})
}

func TestDiffNewConnectionsAreAnalyzed(t *testing.T) {
	store := rules.NewStore()
	store.Rules = []rules.Rule{
		{ID: "est", Name: "Established", Severity: "medium", Tags: []string{"anomaly"},
			Match: rules.MatchSpec{State: strp("ESTABLISHED")}},
	}
	base := Baseline{ExpectedPIDs: []int32{100, 300}}

	report := Diff(snapshot(), base, store)

	require.Len(t, report.NewConnections, 1)
	analysis := report.NewConnections[0]
	assert.True(t, analysis.IsSuspicious)
	assert.Equal(t, "medium", analysis.Severity)
	assert.Equal(t, []string{"anomaly"}, analysis.Tags)
}

func TestDiffSkipsKernelSocketsAndPlaceholders(t *testing.T) {
	// One kernel-owned socket with no remote, one placeholder remote.
	conns := []inventory.Connection{
		{State: "TIME_WAIT"},
		{RemoteAddr: "0.0.0.0", RemotePort: 80, State: "A"},
	}
	base := Baseline{ExpectedPIDs: []int32{1}, ExpectedEndpoints: []string{"x"}}

	report := Diff(conns, base, rules.NewStore())

	assert.Equal(t, 0, report.CurrentPIDCount)
	assert.Equal(t, 0, report.CurrentEndpointCount)
	assert.Empty(t, report.NewPIDs)
	assert.Empty(t, report.NewEndpoints)
	assert.Empty(t, report.NewConnections)
}

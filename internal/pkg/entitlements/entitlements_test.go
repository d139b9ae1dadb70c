package entitlements

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Plan
	}{
		{"pro", PlanPro},
		{" Pro ", PlanPro},
		{"free", PlanFree},
		{"", PlanFree},
		{"enterprise", PlanFree},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAllowsMessages(t *testing.T) {
	free := planLimits[PlanFree].ChatMessagesPerDay

	if !AllowsMessages("free", free-1) {
		t.Fatal("free plan should allow messages below the daily limit")
	}
	if AllowsMessages("free", free) {
		t.Fatal("free plan should block messages at the daily limit")
	}
	if !AllowsMessages("pro", 100000) {
		t.Fatal("pro plan has unlimited daily messages")
	}
}

func TestAllowsNewSession(t *testing.T) {
	max := planLimits[PlanFree].MaxChatSessions

	if !AllowsNewSession("free", max-1) {
		t.Fatal("free plan should allow sessions below the limit")
	}
	if AllowsNewSession("free", max) {
		t.Fatal("free plan should block sessions at the limit")
	}
	if !AllowsNewSession("pro", 100000) {
		t.Fatal("pro plan has unlimited sessions")
	}
}

func TestContextChunksPerPlan(t *testing.T) {
	if LimitsFor("free").ContextChunks >= LimitsFor("pro").ContextChunks {
		t.Fatal("pro plan should retrieve more context chunks than free")
	}
}

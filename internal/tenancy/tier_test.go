package tenancy

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"personal_free", TierPersonalFree, false},
		{"personal_pro", TierPersonalPro, false},
		{"organization", TierOrganization, false},
		{"enterprise", TierOrganization, false},
		{"ENTERPRISE", TierOrganization, false},
		{" organization ", TierOrganization, false},
		{"premium", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaxDevices(t *testing.T) {
	if got := MaxDevices(TierPersonalFree, 500); got != 1 {
		t.Errorf("MaxDevices(personal_free) = %d, want 1", got)
	}
	if got := MaxDevices(TierPersonalPro, 500); got != 10 {
		t.Errorf("MaxDevices(personal_pro) = %d, want 10", got)
	}
	if got := MaxDevices(TierOrganization, 500); got != 500 {
		t.Errorf("MaxDevices(organization) = %d, want org max_agents", got)
	}
}

func TestTokenMinting(t *testing.T) {
	if LimitsFor(TierPersonalFree).CanMintTokens {
		t.Error("personal_free may not mint enrollment tokens")
	}
	if LimitsFor(TierPersonalPro).CanMintTokens {
		t.Error("personal_pro may not mint enrollment tokens")
	}
	if !LimitsFor(TierOrganization).CanMintTokens {
		t.Error("organization must be able to mint enrollment tokens")
	}
}

func TestFlowGating(t *testing.T) {
	if !IsPersonal(TierPersonalFree) || !IsPersonal(TierPersonalPro) {
		t.Error("personal tiers must use the personal flow")
	}
	if IsPersonal(TierOrganization) {
		t.Error("organization tier must not use the personal flow")
	}
	if LimitsFor(TierPersonalFree).OrgEnroll || LimitsFor(TierPersonalPro).OrgEnroll {
		t.Error("personal tiers must not use the org-token flow")
	}
	if !LimitsFor(TierOrganization).OrgEnroll {
		t.Error("organization tier must use the org-token flow")
	}
}

func TestUnknownTierIsRestrictive(t *testing.T) {
	l := LimitsFor(Tier("bogus"))
	if l.MaxDevices != 1 || l.CanMintTokens {
		t.Errorf("unknown tier limits = %+v, want personal_free limits", l)
	}
}

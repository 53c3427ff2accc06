package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateEntitlementPolicy(t *testing.T) {
	cases := []struct {
		name    string
		policy  EntitlementPolicy
		wantErr bool
	}{
		{name: "defaults", policy: DefaultEntitlementPolicy()},
		{name: "zero free quota", policy: EntitlementPolicy{FreePostQuota: 0, FreeWindowDays: 30, ListingDisplayDays: 60}},
		{name: "negative quota", policy: EntitlementPolicy{FreePostQuota: -1, FreeWindowDays: 30, ListingDisplayDays: 60}, wantErr: true},
		{name: "zero window", policy: EntitlementPolicy{FreePostQuota: 5, FreeWindowDays: 0, ListingDisplayDays: 60}, wantErr: true},
		{name: "zero display", policy: EntitlementPolicy{FreePostQuota: 5, FreeWindowDays: 30}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateEntitlementPolicy(tc.policy)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEntitlementPolicyWindows(t *testing.T) {
	p := DefaultEntitlementPolicy()
	if got := p.FreeWindow(); got != 30*24*time.Hour {
		t.Fatalf("expected 30 day window, got %s", got)
	}
	if got := p.DisplayWindow(); got != 60*24*time.Hour {
		t.Fatalf("expected 60 day display window, got %s", got)
	}
}

func TestNewEntitlementPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("entitlement:\n  free_post_quota: 3\n  free_window_days: 7\n  listing_display_days: 14\n")
	if err := os.WriteFile(filepath.Join(dir, "entitlement.yml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewEntitlementPolicyHolder()
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}
	got := holder.Get()
	if got.FreePostQuota != 3 || got.FreeWindowDays != 7 || got.ListingDisplayDays != 14 {
		t.Fatalf("unexpected policy: %+v", got)
	}
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *EntitlementPolicyHolder
	if got := holder.Get(); got != DefaultEntitlementPolicy() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

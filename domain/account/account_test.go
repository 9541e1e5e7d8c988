package account_test

import (
	"strings"
	"testing"

	"github.com/artpar/quotagate/domain/account"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		rec  account.Record
		want string
	}{
		{"active under quota", account.Record{Active: true, Quota: 10, Used: 3}, account.ReasonOK},
		{"active one left", account.Record{Active: true, Quota: 10, Used: 9}, account.ReasonOK},
		{"active at quota", account.Record{Active: true, Quota: 10, Used: 10}, account.ReasonQuotaExceeded},
		{"inactive under quota", account.Record{Active: false, Quota: 10, Used: 0}, account.ReasonInactive},
		{"inactive at quota", account.Record{Active: false, Quota: 10, Used: 10}, account.ReasonInactive},
		{"zero quota", account.Record{Active: true, Quota: 0}, account.ReasonQuotaExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := account.Check(tt.rec); got != tt.want {
				t.Errorf("Check() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	if got := account.Remaining(account.Record{Quota: 1000, Used: 250}); got != 750 {
		t.Errorf("Remaining() = %d, want 750", got)
	}
	if got := account.Remaining(account.Record{Quota: 5, Used: 7}); got != 0 {
		t.Errorf("Remaining() over quota = %d, want 0", got)
	}
}

func TestValidateFormat(t *testing.T) {
	hex := strings.Repeat("0123456789abcdef", 2)

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"valid", "qk_" + hex, true},
		{"wrong prefix", "ak_" + hex, false},
		{"missing prefix", hex, false},
		{"too short", "qk_" + hex[:31], false},
		{"too long", "qk_" + hex + "0", false},
		{"uppercase hex", "qk_" + strings.ToUpper(hex), false},
		{"non hex", "qk_" + strings.Repeat("z", 32), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := account.ValidateFormat(tt.raw, "qk_"); got != tt.want {
				t.Errorf("ValidateFormat(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMask(t *testing.T) {
	if got := account.Mask("qk_0123456789abcdef"); got != "qk_0123456..." {
		t.Errorf("Mask() = %q", got)
	}
	if got := account.Mask("short"); got != "short" {
		t.Errorf("Mask(short) = %q", got)
	}
}

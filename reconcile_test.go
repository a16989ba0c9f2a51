package cpufeatures

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name   string
		new    string
		orig   string
		avail  string
		policy Policy
		want   string
	}{
		{
			name:   "owned tags replaced, foreign kept",
			new:    "VENDOR::GenuineIntel,ISA::avx",
			orig:   "ISA::sse,gpu,mem512,VENDOR::GenuineIntel",
			policy: PolicyCarryForward,
			want:   "VENDOR::GenuineIntel,ISA::avx,gpu,mem512",
		},
		{
			name:   "nothing detected",
			new:    "",
			orig:   "ISA::sse,gpu",
			policy: PolicyCarryForward,
			want:   "ISA::sse,gpu",
		},
		{
			name:   "empty node list",
			new:    "ISA::sse,ISA::avx",
			orig:   "",
			policy: PolicyCarryForward,
			want:   "ISA::sse,ISA::avx",
		},
		{
			name:   "no duplicates",
			new:    "ISA::avx,ISA::avx",
			orig:   "gpu,gpu,ISA::avx",
			policy: PolicyCarryForward,
			want:   "ISA::avx,gpu",
		},
		{
			name:   "foreign tag also detected",
			new:    "ISA::avx,gpu",
			orig:   "gpu,ib",
			policy: PolicyCarryForward,
			want:   "ISA::avx,gpu,ib",
		},
		{
			name:   "gated keeps available owned tags",
			new:    "ISA::avx,ISA::avx2,PCI::GPU::V100,custom",
			orig:   "gpu",
			avail:  "ISA::avx,PCI::GPU::V100,gpu",
			policy: PolicyAvailabilityGated,
			want:   "ISA::avx,PCI::GPU::V100,custom,gpu",
		},
		{
			name:   "gated with nothing available",
			new:    "ISA::avx",
			orig:   "gpu,ISA::sse",
			avail:  "",
			policy: PolicyAvailabilityGated,
			want:   "gpu",
		},
		{
			name:   "gated matches whole tags",
			new:    "ISA::avx",
			orig:   "",
			avail:  "ISA::avx2",
			policy: PolicyAvailabilityGated,
			want:   "",
		},
		{
			name:   "carry-forward ignores avail",
			new:    "ISA::avx",
			orig:   "",
			avail:  "",
			policy: PolicyCarryForward,
			want:   "ISA::avx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.new, tt.orig, tt.avail, tt.policy)
			if got != tt.want {
				t.Errorf("Reconcile(%q, %q, %q, %v) = %q, want %q", tt.new, tt.orig, tt.avail, tt.policy, got, tt.want)
			}
			if Reorder(got) != got {
				t.Errorf("Reorder(%q) changed the list", got)
			}
		})
	}
}

func TestReconcile_LongLists(t *testing.T) {
	const n = 5000
	var newTags, orig []string
	for i := 0; i < n; i++ {
		newTags = append(newTags, fmt.Sprintf("ISA::x%d", i%(n/2)))
		orig = append(orig, fmt.Sprintf("node%d", i%(n/4)), fmt.Sprintf("ISA::old%d", i))
	}

	got := SplitTags(Reconcile(strings.Join(newTags, ","), strings.Join(orig, ","), "", PolicyCarryForward))
	if len(got) != n/2+n/4 {
		t.Fatalf("Reconcile() returned %d tags, want %d", len(got), n/2+n/4)
	}
	if got[0] != "ISA::x0" || got[n/2-1] != fmt.Sprintf("ISA::x%d", n/2-1) {
		t.Errorf("new tags out of order: %q ... %q", got[0], got[n/2-1])
	}
	if got[n/2] != "node0" || got[len(got)-1] != fmt.Sprintf("node%d", n/4-1) {
		t.Errorf("foreign tags out of order: %q ... %q", got[n/2], got[len(got)-1])
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", PolicyCarryForward, false},
		{"carry-forward", PolicyCarryForward, false},
		{" Availability-Gated ", PolicyAvailabilityGated, false},
		{"strict", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPolicy) {
					t.Fatalf("ParsePolicy(%q) error = %v, want ErrUnknownPolicy", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePolicy(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPolicyString(t *testing.T) {
	for p, ids := range PolicyIdentifiers() {
		if p.String() != ids[0] {
			t.Errorf("%d.String() = %q, want %q", int(p), p.String(), ids[0])
		}
		back, err := ParsePolicy(p.String())
		if err != nil || back != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), back, err)
		}
	}
	if got := Policy(7).String(); got != "Policy(7)" {
		t.Errorf("Policy(7).String() = %q", got)
	}
}

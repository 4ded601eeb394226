package taverna

import (
	"errors"
	"testing"
)

func TestCheckJoin(t *testing.T) {
	if err := CheckJoin(1, 4, false); err != nil {
		t.Errorf("dm alone, 4 seats: %v", err)
	}
	if err := CheckJoin(3, 4, false); err != nil {
		t.Errorf("3 of 4: %v", err)
	}
	if err := CheckJoin(4, 4, false); !errors.Is(err, ErrCampaignFull) {
		t.Errorf("4 of 4: got %v, want ErrCampaignFull", err)
	}
	if err := CheckJoin(6, 4, false); !errors.Is(err, ErrCampaignFull) {
		t.Errorf("over limit: got %v", err)
	}
	if err := CheckJoin(2, 4, true); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("member rejoin: got %v, want ErrAlreadyMember", err)
	}
}

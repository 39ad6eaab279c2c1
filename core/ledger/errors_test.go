package ledger_test

import (
	"errors"
	"fmt"
	"testing"

	"stock-ledger/core/ledger"

	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: "",
		},
		{
			name: "insufficient materials",
			err: fmt.Errorf("wrapped: %w", &ledger.InsufficientMaterialsError{
				Result:     gem,
				Shortfalls: []ledger.Shortfall{{Material: "다이아몬드", Available: 35, Needed: 40, Deficit: 5}},
			}),
			want: "Not enough materials to craft ㅇㄴ.\n다이아몬드: available 35, needed 40, deficit 5",
		},
		{
			name: "already assigned",
			err:  &ledger.AlreadyAssignedError{Entry: gem, Holder: ledger.Assignment{UserName: "bob"}},
			want: "ㅇㄴ is already being worked on by bob.",
		},
		{
			name: "partial apply",
			err:  &ledger.PartialApplyError{Applied: 1, Submitted: 3},
			want: "Some changes may not have been saved, please re-check.",
		},
		{
			name: "partial apply wins over transient cause",
			err:  &ledger.PartialApplyError{Applied: 1, Submitted: 3, Cause: ledger.ErrStoreUnavailable},
			want: "Some changes may not have been saved, please re-check.",
		},
		{
			name: "not found",
			err:  fmt.Errorf("%w: raw/gems/x", ledger.ErrNotFound),
			want: "The entry could not be found.",
		},
		{
			name: "unavailable",
			err:  fmt.Errorf("failed: %w", ledger.ErrStoreUnavailable),
			want: "The ledger is temporarily unavailable, please try again.",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: "Something went wrong.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.Message(tt.err))
		})
	}
}

func TestInsufficientMaterialsError_Error(t *testing.T) {
	err := &ledger.InsufficientMaterialsError{
		Result: craftBar,
		Shortfalls: []ledger.Shortfall{
			{Material: "ore", Available: 1, Needed: 4, Deficit: 3},
			{Material: "coal", Available: 0, Needed: 2, Deficit: 2},
		},
	}
	assert.Equal(t,
		"insufficient materials for crafted/metal/bar: ore: available 1, needed 4, deficit 3; coal: available 0, needed 2, deficit 2",
		err.Error())
}

package remote

import (
	"context"
	"testing"

	domainerrors "github.com/jbctechsolutions/projectgate/internal/domain/errors"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/testutil"
)

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
		nilArg  bool
	}{
		{name: "valid uploader", key: "http"},
		{name: "empty name", key: "", wantErr: true},
		{name: "nil uploader", key: "none", nilArg: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			var err error
			if tt.nilArg {
				err = r.Register(tt.key, nil)
			} else {
				err = r.Register(tt.key, Nop{})
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_OrderAndReplace(t *testing.T) {
	r := NewRegistry()
	testutil.AssertNoError(t, r.Register("b", Nop{}))
	testutil.AssertNoError(t, r.Register("a", Nop{}))
	testutil.AssertNoError(t, r.Register("b", Nop{Threshold: 1}))

	names := r.List()
	testutil.AssertEqual(t, len(names), 2)
	testutil.AssertEqual(t, names[0], "b")
	testutil.AssertEqual(t, names[1], "a")
	testutil.AssertEqual(t, r.Get("b").(Nop).Threshold, int64(1))

	if !r.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if r.Remove("b") {
		t.Error("second Remove(b) = true")
	}
	testutil.AssertEqual(t, r.Count(), 1)

	_, err := r.GetRequired("b")
	testutil.AssertErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestNop_Threshold(t *testing.T) {
	ctx := context.Background()
	u := Nop{Threshold: 100}

	testutil.AssertNoError(t, u.UploadProjectWithThreshold(ctx, "p", nil, 100))
	testutil.AssertErrorIs(t,
		u.UploadProjectWithThreshold(ctx, "p", nil, 101),
		domainerrors.ErrSyncThresholdExceeded)
	testutil.AssertNoError(t, u.UploadProject(ctx, "p", nil))
	testutil.AssertNoError(t, Nop{}.UploadProjectWithThreshold(ctx, "p", nil, 1<<40))
}

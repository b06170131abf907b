package dedupe

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

var errStoreDown = errors.New("connection refused")

type fakeRolls struct {
	rolls       []*entity.CountedRoll
	failHash    bool
	failListing bool
	listCalls   int
}

func (f *fakeRolls) FindByContentHash(_ context.Context, hash string, exclude uuid.UUID) (*entity.CountedRoll, error) {
	if f.failHash {
		return nil, errStoreDown
	}
	for _, r := range f.rolls {
		if r.ID != exclude && r.ContentHash != nil && *r.ContentHash == hash {
			return r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRolls) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*entity.CountedRoll, error) {
	f.listCalls++
	if f.failListing {
		return nil, errStoreDown
	}
	var out []*entity.CountedRoll
	for _, r := range f.rolls {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRolls) add(r *entity.CountedRoll) *entity.CountedRoll {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.rolls = append(f.rolls, r)
	return r
}

func strp(s string) *string { return &s }

func floatp(f float64) *float64 { return &f }

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/ports"
)

func newRecord(key string, quota, used int64) account.Record {
	return account.Record{
		APIKey:     key,
		SecretHash: []byte("secret"),
		Active:     true,
		Plan:       "basic",
		Quota:      quota,
		Used:       used,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestKeyStore_GetNotFound(t *testing.T) {
	s := memory.NewKeyStore(0)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_CreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)

	if err := s.Create(ctx, newRecord("k1", 10, 0)); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err := s.Create(ctx, newRecord("k1", 99, 5))
	if !errors.Is(err, ports.ErrAlreadyExists) {
		t.Fatalf("second Create() error = %v, want ErrAlreadyExists", err)
	}

	got, _ := s.Get(ctx, "k1")
	if got.Quota != 10 || got.Used != 0 {
		t.Errorf("record overwritten: %+v", got)
	}
}

func TestKeyStore_PutUpserts(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)

	s.Put(ctx, newRecord("k1", 10, 0))
	replaced := newRecord("k1", 10, 0)
	replaced.Active = false
	s.Put(ctx, replaced)

	got, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Active {
		t.Error("Put() did not replace the record")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestKeyStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(1)
	s.Create(ctx, newRecord("k1", 10, 0))

	got, _ := s.Get(ctx, "k1")
	got.SecretHash[0] = 'X'

	again, _ := s.Get(ctx, "k1")
	if string(again.SecretHash) != "secret" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestKeyStore_SetActive(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)
	s.Create(ctx, newRecord("k1", 10, 7))

	if err := s.SetActive(ctx, "k1", false); err != nil {
		t.Fatalf("SetActive() error: %v", err)
	}
	got, _ := s.Get(ctx, "k1")
	if got.Active || got.Used != 7 {
		t.Errorf("after SetActive(false) = %+v", got)
	}

	if err := s.SetActive(ctx, "missing", true); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("SetActive(missing) error = %v, want ErrNotFound", err)
	}
}

func TestKeyStore_CompareAndCharge(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)
	s.Create(ctx, newRecord("k1", 2, 0))

	used, err := s.CompareAndCharge(ctx, "k1", 0)
	if err != nil || used != 1 {
		t.Fatalf("charge 1 = (%d, %v), want (1, nil)", used, err)
	}

	if _, err := s.CompareAndCharge(ctx, "k1", 0); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("stale expected error = %v, want ErrConflict", err)
	}

	used, err = s.CompareAndCharge(ctx, "k1", 1)
	if err != nil || used != 2 {
		t.Fatalf("charge 2 = (%d, %v), want (2, nil)", used, err)
	}

	if _, err := s.CompareAndCharge(ctx, "k1", 2); !errors.Is(err, ports.ErrQuotaExceeded) {
		t.Errorf("over quota error = %v, want ErrQuotaExceeded", err)
	}

	if _, err := s.CompareAndCharge(ctx, "nope", 0); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}

	got, _ := s.Get(ctx, "k1")
	if got.Used != 2 {
		t.Errorf("Used = %d, want 2", got.Used)
	}
}

func TestKeyStore_CompareAndCharge_Inactive(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)
	s.Create(ctx, newRecord("k1", 10, 3))
	s.SetActive(ctx, "k1", false)

	if _, err := s.CompareAndCharge(ctx, "k1", 3); !errors.Is(err, ports.ErrInactive) {
		t.Fatalf("inactive charge error = %v, want ErrInactive", err)
	}
	got, _ := s.Get(ctx, "k1")
	if got.Used != 3 {
		t.Errorf("Used = %d, want 3", got.Used)
	}
}

func TestKeyStore_CompareAndCharge_LastUnitRace(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(8)
	s.Create(ctx, newRecord("k1", 10, 9))

	var wins, exceeded, conflicts atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.CompareAndCharge(ctx, "k1", 9)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ports.ErrQuotaExceeded):
				exceeded.Add(1)
			case errors.Is(err, ports.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("wins = %d, want exactly 1", wins.Load())
	}
	if exceeded.Load()+conflicts.Load() != 63 {
		t.Errorf("losers = %d, want 63", exceeded.Load()+conflicts.Load())
	}
	got, _ := s.Get(ctx, "k1")
	if got.Used != 10 {
		t.Errorf("Used = %d, want 10", got.Used)
	}
}

func TestKeyStore_List(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := newRecord(fmt.Sprintf("k%d", i), 10, 0)
		rec.CreatedAt = base.Add(time.Duration(5-i) * time.Minute)
		s.Create(ctx, rec)
	}

	all, err := s.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List() len = %d, want 5", len(all))
	}
	if all[0].APIKey != "k4" || all[4].APIKey != "k0" {
		t.Errorf("List() order = %s..%s, want k4..k0", all[0].APIKey, all[4].APIKey)
	}

	page, _ := s.List(ctx, 2, 1)
	if len(page) != 2 || page[0].APIKey != "k3" {
		t.Errorf("List(2,1) = %v", page)
	}

	if empty, _ := s.List(ctx, 10, 50); len(empty) != 0 {
		t.Errorf("List past end len = %d", len(empty))
	}
}

func TestKeyStore_ListNegativeOffset(t *testing.T) {
	ctx := context.Background()
	s := memory.NewKeyStore(4)
	s.Create(ctx, newRecord("k1", 10, 0))
	s.Create(ctx, newRecord("k2", 10, 0))

	got, err := s.List(ctx, 10, -1)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List(10, -1) len = %d, want 2", len(got))
	}
}

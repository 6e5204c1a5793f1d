package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/utilitysc/vsd-monitor/internal/adapter/store"
	"github.com/utilitysc/vsd-monitor/internal/domain"
)

func openTestStore(t *testing.T) *store.SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vsd.db")
	st, err := store.OpenSQLite(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLStore_SchemaIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	units := []string{"CT_9", "CT_10"}

	if err := st.CreateSchema(ctx, "vsd_freq", units, store.ColumnNumeric); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateSchema(ctx, "vsd_freq", units, store.ColumnNumeric); err != nil {
		t.Fatalf("second CreateSchema: %v", err)
	}
}

func TestSQLStore_AppendAndReadBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	units := []string{"CT_9", "CT_10", "CT_11"}

	if err := st.CreateSchema(ctx, "vsd_temp", units, store.ColumnNumeric); err != nil {
		t.Fatal(err)
	}

	rows := []struct {
		date, tm string
		values   []store.Value
	}{
		{"2024-01-01", "10:00", []store.Value{store.NumberValue(31.5), store.NullValue(), store.NumberValue(-2.5)}},
		{"2024-01-01", "10:01", []store.Value{store.NumberValue(31.6), store.NumberValue(28.0), store.NullValue()}},
	}
	for _, r := range rows {
		if err := st.AppendRow(ctx, "vsd_temp", r.date, r.tm, r.values); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.RecentRows(ctx, "vsd_temp", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	// Newest first.
	if got[0].Time != "10:01" || got[1].Time != "10:00" {
		t.Errorf("row order: %s, %s", got[0].Time, got[1].Time)
	}

	newest := got[0]
	if newest.Date != "2024-01-01" {
		t.Errorf("date: got %q", newest.Date)
	}
	if newest.Values[0].Number == nil || *newest.Values[0].Number != 31.6 {
		t.Errorf("CT_9: got %+v, want 31.6", newest.Values[0])
	}
	if newest.Values[2].Number != nil {
		t.Errorf("CT_11: got %v, want NULL", *newest.Values[2].Number)
	}

	oldest := got[1]
	if oldest.Values[1].Number != nil {
		t.Errorf("CT_10: got %v, want NULL", *oldest.Values[1].Number)
	}
	if oldest.Values[2].Number == nil || *oldest.Values[2].Number != -2.5 {
		t.Errorf("CT_11: got %+v, want -2.5", oldest.Values[2])
	}
}

func TestSQLStore_LabelTable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	units := []string{"CT_9", "CT_10"}

	if err := st.CreateSchema(ctx, "vsd_run", units, store.ColumnLabel); err != nil {
		t.Fatal(err)
	}

	values := []store.Value{store.LabelValue(domain.LabelRun), store.NullValue()}
	if err := st.AppendRow(ctx, "vsd_run", "2024-01-01", "10:00", values); err != nil {
		t.Fatal(err)
	}

	got, err := st.RecentRows(ctx, "vsd_run", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if got[0].Values[0].Label == nil || *got[0].Values[0].Label != domain.LabelRun {
		t.Errorf("CT_9: got %+v, want RUN", got[0].Values[0])
	}
	if got[0].Values[1].Label != nil {
		t.Errorf("CT_10: got %q, want NULL", *got[0].Values[1].Label)
	}
}

func TestSQLStore_AppendValidation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchema(ctx, "vsd_freq", []string{"CT_9", "CT_10"}, store.ColumnNumeric); err != nil {
		t.Fatal(err)
	}

	err := st.AppendRow(ctx, "vsd_freq", "2024-01-01", "10:00", []store.Value{store.NumberValue(1)})
	if !errors.Is(err, domain.ErrValueCountWrong) {
		t.Errorf("short row: got %v, want ErrValueCountWrong", err)
	}

	err = st.AppendRow(ctx, "vsd_other", "2024-01-01", "10:00", []store.Value{store.NumberValue(1)})
	if !errors.Is(err, domain.ErrAppendFailed) {
		t.Errorf("unknown table: got %v, want ErrAppendFailed", err)
	}
}

func TestSQLStore_RecentRowsLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.CreateSchema(ctx, "vsd_freq", []string{"CT_9"}, store.ColumnNumeric); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 15; i++ {
		v := []store.Value{store.NumberValue(float64(i))}
		if err := st.AppendRow(ctx, "vsd_freq", "2024-01-01", "10:00", v); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.RecentRows(ctx, "vsd_freq", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d rows, want 5", len(got))
	}
	if *got[0].Values[0].Number != 14 {
		t.Errorf("newest value: got %v, want 14", *got[0].Values[0].Number)
	}
}

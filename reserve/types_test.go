package reserve_test

import (
	"testing"

	"github.com/chalkline/tabletpool/reserve"
)

// =============================================================================
// POOL TESTS
// =============================================================================

func TestPool_Contains(t *testing.T) {
	p := reserve.NewPool(60)

	if !p.Contains(1) || !p.Contains(60) {
		t.Error("ids 1 and 60 belong to a 60-device pool")
	}
	if p.Contains(0) || p.Contains(61) || p.Contains(-3) {
		t.Error("ids outside 1..60 do not belong")
	}
}

func TestPool_IDs(t *testing.T) {
	ids := reserve.NewPool(3).IDs()
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", ids)
	}
}

func TestNewPool_NegativeSize_Empty(t *testing.T) {
	p := reserve.NewPool(-5)
	if p.Size() != 0 || p.Contains(1) {
		t.Error("a negative size yields an empty pool")
	}
}

// =============================================================================
// BLOCK SET TESTS
// =============================================================================

func TestNewBlockSet_RejectsBadInput(t *testing.T) {
	if _, err := reserve.NewBlockSet(nil); err == nil {
		t.Error("empty block list should be rejected")
	}
	if _, err := reserve.NewBlockSet([]string{"am", ""}); err == nil {
		t.Error("blank block name should be rejected")
	}
	if _, err := reserve.NewBlockSet([]string{"am", "pm", "am"}); err == nil {
		t.Error("duplicate block name should be rejected")
	}
}

func TestBlockSet_ContainsAndIndex(t *testing.T) {
	bs, err := reserve.NewBlockSet(reserve.DefaultBlockNames())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bs.Contains("lunch") {
		t.Error("lunch is a default block")
	}
	if bs.Contains("brunch") {
		t.Error("brunch is not a default block")
	}
	if bs.Index("1st period") != 0 {
		t.Errorf("1st period should sit at index 0, got %d", bs.Index("1st period"))
	}
	if bs.Index("after school") != 7 {
		t.Errorf("after school should sit at index 7, got %d", bs.Index("after school"))
	}
	if bs.Index("brunch") != -1 {
		t.Error("unknown blocks index as -1")
	}
	if bs.Len() != 8 {
		t.Errorf("expected 8 default blocks, got %d", bs.Len())
	}
}

func TestBlockSet_SortBlocks(t *testing.T) {
	bs, err := reserve.NewBlockSet(reserve.DefaultBlockNames())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocks := []reserve.TimeBlock{"lunch", "after school", "1st period", "4th period"}
	bs.SortBlocks(blocks)

	want := []reserve.TimeBlock{"1st period", "4th period", "lunch", "after school"}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, blocks)
		}
	}
}

func TestBlockSet_SortBlocks_UnknownLast(t *testing.T) {
	bs, err := reserve.NewBlockSet([]string{"am", "pm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blocks := []reserve.TimeBlock{"zz", "pm", "aa", "am"}
	bs.SortBlocks(blocks)

	want := []reserve.TimeBlock{"am", "pm", "aa", "zz"}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, blocks)
		}
	}
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestNormalizeDevices(t *testing.T) {
	got := reserve.NormalizeDevices(devs(4, 3, 4, 1, 3))
	want := devs(1, 3, 4)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNormalizeDevices_Empty(t *testing.T) {
	if reserve.NormalizeDevices(nil) != nil {
		t.Error("nil in, nil out")
	}
	if reserve.NormalizeDevices([]reserve.DeviceID{}) != nil {
		t.Error("empty in, nil out")
	}
}

func TestNormalizeDevices_DoesNotMutateInput(t *testing.T) {
	in := devs(9, 1, 9)
	reserve.NormalizeDevices(in)
	if in[0] != 9 || in[1] != 1 || in[2] != 9 {
		t.Errorf("input slice was mutated: %v", in)
	}
}

func TestSlot_String(t *testing.T) {
	s := reserve.Slot{Device: 7, Date: march10, Block: "lunch"}
	if s.String() != "device 7 @ 2026-03-10 / lunch" {
		t.Errorf("unexpected rendering: %s", s)
	}
}

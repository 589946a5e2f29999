package checkpoint

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "checkpoint")
}

func openTemp(tst *testing.T) *Store {
	tst.Helper()
	s, err := Open(filepath.Join(tst.TempDir(), "checkpoint.db"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	tst.Cleanup(func() { s.Close() })
	return s
}

func TestKey(tst *testing.T) {
	dir := tst.TempDir()
	fn := filepath.Join(dir, "Round2_test_refugia_1_optimized.txt")
	if k := string(Key(fn, 7)); k != fn+"#000007" {
		tst.Error("Wrong key:", k)
	}
	other := filepath.Join(dir, "out", "Round2_test_refugia_1_optimized.txt")
	if bytes.HasPrefix(Key(other, 7), Prefix(fn)) {
		tst.Error("Keys of another output directory share the prefix")
	}
}

func TestSaveDone(tst *testing.T) {
	s := openTemp(tst)
	fn := filepath.Join(tst.TempDir(), "Round2_test_ancmig_2_optimized.txt")
	r := &Record{
		Model:      "ancmig_2",
		Replicate:  3,
		Likelihood: -1234.56,
		Theta:      345.67,
		AIC:        2483.12,
		Parameters: []float64{0.5, 6.7, 2.6, 0.7, 2.1, 0.4, 0.25},
	}
	if err := s.Save(fn, r); err != nil {
		tst.Fatal("Error: ", err)
	}
	done, err := s.Done(fn)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if diff := cmp.Diff(map[int]*Record{3: r}, done, cmpopts.IgnoreFields(Record{}, "Saved")); diff != "" {
		tst.Error("Record mismatch (-want +got):\n", diff)
	}
	if done[3].Saved.IsZero() {
		tst.Error("Saving time was not set")
	}
}

func TestDoneAndClear(tst *testing.T) {
	s := openTemp(tst)
	dir := tst.TempDir()
	fn := filepath.Join(dir, "Round1_p_split_nomig_optimized.txt")
	for i := 1; i <= 12; i++ {
		if err := s.Save(fn, &Record{Model: "split_nomig", Replicate: i}); err != nil {
			tst.Fatal("Error: ", err)
		}
	}
	// the same file name in another directory
	other := filepath.Join(dir, "old", "Round1_p_split_nomig_optimized.txt")
	if err := s.Save(other, &Record{Model: "split_nomig", Replicate: 1}); err != nil {
		tst.Fatal("Error: ", err)
	}
	done, err := s.Done(fn)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(done) != 12 || done[12] == nil {
		tst.Error("Expected 12 replicates, got", len(done))
	}
	if err := s.Clear(fn); err != nil {
		tst.Fatal("Error: ", err)
	}
	done, _ = s.Done(fn)
	if len(done) != 0 {
		tst.Error("Expected no replicates after clear, got", len(done))
	}
	if rest, _ := s.Done(other); len(rest) != 1 {
		tst.Error("Clear removed records of another file")
	}
}

func TestNilStore(tst *testing.T) {
	var s *Store
	if err := s.Save("f", &Record{}); err != nil {
		tst.Error("Error: ", err)
	}
	if err := s.Clear("f"); err != nil {
		tst.Error("Error: ", err)
	}
	if done, err := s.Done("f"); len(done) != 0 || err != nil {
		tst.Error("Expected nothing from a nil store")
	}
	if err := s.Close(); err != nil {
		tst.Error("Error: ", err)
	}
}

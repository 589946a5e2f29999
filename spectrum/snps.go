package spectrum

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/combin"
)

// SNP is a single row of a SNP table.
type SNP struct {
	// ID is built from the trailing columns (usually gene and
	// position).
	ID string
	// Ingroup and Outgroup are the trinucleotide contexts.
	Ingroup  string
	Outgroup string
	// Alleles are the two observed alleles.
	Alleles [2]string
	// Calls stores the per population allele counts, in the
	// order of the table header.
	Calls [][2]int
}

// SNPTable is a parsed SNP table.
type SNPTable struct {
	// Pops are population names from the header.
	Pops []string
	SNPs []SNP
}

// PopIndex returns the column index of a population or -1.
func (t *SNPTable) PopIndex(pop string) int {
	for i, p := range t.Pops {
		if p == pop {
			return i
		}
	}
	return -1
}

// ReadSNPs parses a SNP table. Lines starting with '#' are comments.
// The first non-comment line is the header:
//
//	Ingroup Outgroup Allele1 pop1 ... popN Allele2 pop1 ... popN extra...
//
// Every following line is one SNP.
func ReadSNPs(r io.Reader) (*SNPTable, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var header []string
	var a1, a2, npop int
	t := &SNPTable{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if header == nil {
			header = fields
			a1, a2 = -1, -1
			for i, f := range fields {
				switch f {
				case "Allele1":
					a1 = i
				case "Allele2":
					a2 = i
				}
			}
			if a1 < 0 || a2 < 0 || a2 <= a1+1 {
				return nil, fmt.Errorf("line %d: header should contain Allele1, population names and Allele2", lineNo)
			}
			npop = a2 - a1 - 1
			if len(fields) < a2+1+npop {
				return nil, fmt.Errorf("line %d: header has %d populations after Allele1 but too few columns after Allele2", lineNo, npop)
			}
			t.Pops = append(t.Pops, fields[a1+1:a2]...)
			for i, p := range t.Pops {
				if fields[a2+1+i] != p {
					return nil, fmt.Errorf("line %d: population order differs after Allele2 (%s != %s)", lineNo, fields[a2+1+i], p)
				}
			}
			continue
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", lineNo, len(header), len(fields))
		}
		snp := SNP{
			Ingroup:  fields[0],
			Outgroup: fields[1],
			Alleles:  [2]string{fields[a1], fields[a2]},
			Calls:    make([][2]int, npop),
		}
		for i := 0; i < npop; i++ {
			c1, err := strconv.Atoi(fields[a1+1+i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			c2, err := strconv.Atoi(fields[a2+1+i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if c1 < 0 || c2 < 0 {
				return nil, fmt.Errorf("line %d: negative allele count", lineNo)
			}
			snp.Calls[i] = [2]int{c1, c2}
		}
		extra := fields[a2+1+npop:]
		if len(extra) > 0 {
			snp.ID = strings.Join(extra, "_")
		} else {
			snp.ID = strconv.Itoa(len(t.SNPs))
		}
		t.SNPs = append(t.SNPs, snp)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if header == nil {
		return nil, errors.New("no header in SNP table")
	}
	return t, nil
}

// ReadSNPFile reads a SNP table from a file.
func ReadSNPFile(fileName string) (*SNPTable, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSNPs(f)
}

// projectionKey identifies a cached projection vector.
type projectionKey struct {
	n, d, proj int
}

// projector caches hypergeometric projection vectors.
type projector map[projectionKey][]float64

// get returns probabilities of having k derived copies (k=0..proj)
// when proj copies are drawn without replacement from n copies with d
// derived ones.
func (p projector) get(n, d, proj int) []float64 {
	key := projectionKey{n, d, proj}
	if v, ok := p[key]; ok {
		return v
	}
	v := make([]float64, proj+1)
	lTotal := combin.LogGeneralizedBinomial(float64(n), float64(proj))
	for k := 0; k <= proj; k++ {
		if k > d || proj-k > n-d {
			continue
		}
		v[k] = math.Exp(combin.LogGeneralizedBinomial(float64(d), float64(k)) +
			combin.LogGeneralizedBinomial(float64(n-d), float64(proj-k)) - lTotal)
	}
	p[key] = v
	return v
}

// FromSNPs builds a spectrum for the populations popIDs projected down
// to the given sample sizes. SNPs with fewer called copies than the
// projection in any population are skipped. If polarized is true the
// middle base of the outgroup context decides the ancestral allele and
// SNPs where it matches neither allele are skipped; otherwise allele 1
// is counted and the spectrum is folded.
func FromSNPs(t *SNPTable, popIDs []string, projections []int, polarized bool) (*Spectrum, error) {
	if len(popIDs) != len(projections) {
		return nil, fmt.Errorf("%w: %d populations and %d projections", ErrShape, len(popIDs), len(projections))
	}
	cols := make([]int, len(popIDs))
	for i, pop := range popIDs {
		cols[i] = t.PopIndex(pop)
		if cols[i] < 0 {
			return nil, fmt.Errorf("population %q not found in SNP table (have %v)", pop, t.Pops)
		}
	}
	s, err := New(projections, popIDs)
	if err != nil {
		return nil, err
	}

	proj := projector{}
	probs := make([][]float64, len(popIDs))
	used, skipped := 0, 0
SNPs:
	for _, snp := range t.SNPs {
		derived := 0
		if polarized {
			if len(snp.Outgroup) < 2 {
				skipped++
				continue
			}
			anc := snp.Outgroup[len(snp.Outgroup)/2 : len(snp.Outgroup)/2+1]
			switch anc {
			case snp.Alleles[0]:
				derived = 1
			case snp.Alleles[1]:
				derived = 0
			default:
				skipped++
				continue SNPs
			}
		}
		for i, col := range cols {
			calls := snp.Calls[col]
			n := calls[0] + calls[1]
			if n < projections[i] {
				skipped++
				continue SNPs
			}
			probs[i] = proj.get(n, calls[derived], projections[i])
		}
		s.addOuter(probs)
		used++
	}
	log.Infof("Spectrum from %d SNPs, %d skipped", used, skipped)

	if !polarized {
		s = s.Fold()
	}
	return s, nil
}

// addOuter adds the outer product of per-axis vectors.
func (s *Spectrum) addOuter(probs [][]float64) {
	var rec func(axis, f int, w float64)
	rec = func(axis, f int, w float64) {
		if axis == len(probs) {
			s.data[f] += w
			return
		}
		for k, p := range probs[axis] {
			if p == 0 {
				continue
			}
			rec(axis+1, f+k*s.stride[axis], w*p)
		}
	}
	rec(0, 0, 1)
}

// Load reads a SNP table and builds a folded spectrum.
func Load(fileName string, popIDs []string, projections []int) (*Spectrum, error) {
	t, err := ReadSNPFile(fileName)
	if err != nil {
		return nil, err
	}
	log.Infof("Read %d SNPs for populations %v", len(t.SNPs), t.Pops)
	return FromSNPs(t, popIDs, projections, false)
}

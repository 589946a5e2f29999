package main

import (
	"fmt"
	"io"
	"os"

	"bitbucket.org/Davydov/afsfit/spectrum"
)

// showSpectrum runs the spectrum command.
func showSpectrum(w io.Writer, configF, heatmapDir string) error {
	cfg, err := loadConfig(configF, overrides{})
	if err != nil {
		return err
	}
	s, err := spectrum.Load(cfg.SNPs, cfg.Populations, cfg.Projections)
	if err != nil {
		return err
	}
	if err := printSpectrum(w, s); err != nil {
		return err
	}
	if heatmapDir == "" {
		return nil
	}
	if err := os.MkdirAll(heatmapDir, 0777); err != nil {
		return err
	}
	files, err := heatmaps(s, heatmapDir)
	if err != nil {
		return err
	}
	for _, fn := range files {
		log.Noticef("Heat map written to %s", fn)
	}
	return nil
}

// printSpectrum prints the populations, the sample sizes and the number
// of segregating sites.
func printSpectrum(w io.Writer, s *spectrum.Spectrum) error {
	ns := s.SampleSizes()
	for i, n := range ns {
		id := fmt.Sprintf("pop%d", i+1)
		if i < len(s.PopIDs) {
			id = s.PopIDs[i]
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\n", id, n); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "folded\t%v\nS\t%.2f\n", s.Folded(), s.S())
	return err
}

// Command coilmaps demonstrates how 2D coil sensitivity maps are obtained
// from a multi-coil Cartesian MR acquisition: directly from raw k-space and
// from independently reconstructed coil images, by the SRSS and Inati
// methods, with a consistency check between the two routes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mrkspace/internal/report"
	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/coilsense"
	"mrkspace/pkg/config"
	"mrkspace/pkg/engine"
	"mrkspace/pkg/phantom"
	"mrkspace/pkg/rawdata"
	"mrkspace/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("file", "", "Acquisition capture file (empty: simulate a phantom dataset)")
	configFile := flag.String("config", "", "Optional YAML configuration file")
	iterations := flag.Int("iter", 10, "Number of smoothing iterations for SRSS estimation")
	scheme := flag.String("scheme", "memory", "Capture buffering scheme: memory or file")
	outDir := flag.String("outdir", "", "Directory for output figures (default: from config)")
	nonInteractive := flag.Bool("non-interactive", false, "Do not write figure files")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *outDir == "" {
		*outDir = cfg.Output.Dir
	}

	eng := &engine.Native{Workers: cfg.Processing.NumCores}

	if err := run(eng, cfg, *inputFile, *scheme, *iterations, *outDir, !*nonInteractive); err != nil {
		fmt.Fprintf(os.Stderr, "??? %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n=== done with coilmaps")
}

func run(eng engine.ReconstructionEngine, cfg *config.Config, inputFile, schemeTag string, iterations int, outDir string, figures bool) error {
	// 1. Prepare data: load a capture or simulate the demo phantom.
	var (
		acqData *acquisition.Store
		err     error
	)
	if inputFile != "" {
		scheme, perr := rawdata.ParseScheme(schemeTag)
		if perr != nil {
			return perr
		}
		fmt.Printf("reading acquisition data from %s...\n", inputFile)
		acqData, err = eng.LoadAcquisitions(inputFile, scheme)
	} else {
		fmt.Println("no input file given, simulating a 2D Cartesian phantom acquisition...")
		p := phantom.DefaultParams()
		p.Matrix = cfg.Phantom.Matrix
		p.Coils = cfg.Phantom.Coils
		p.NoiseSigma = cfg.Phantom.NoiseSigma
		acqData, err = phantom.Cartesian(p)
	}
	if err != nil {
		return err
	}
	fmt.Printf("acquisition data norm: %e\n", acqData.Norm())

	// Pre-process acquisition data and sort it into a Cartesian matrix.
	processed, err := eng.Preprocess(acqData)
	if err != nil {
		return err
	}
	fmt.Printf("processed data norm: %e\n", processed.Norm())
	if err := processed.Sort(); err != nil {
		return err
	}

	// 2. Calculate coil sensitivity maps directly from raw k-space by the
	// Square-Root-of-the-Sum-of-Squares over all coils (SRSS) method.
	fmt.Println("using Square-Root-of-the-Sum-of-Squares (SRSS) method...")
	fmt.Println("A) calculating from raw data...")
	srssDirect, err := eng.EstimateSensitivity(processed, coilsense.SRSS{Iterations: iterations})
	if err != nil {
		return err
	}

	// Check Fill and AsArray compatibility.
	refilled := srssDirect.Clone()
	if err := refilled.Fill(srssDirect.AsArray()); err != nil {
		return err
	}
	zero, err := srssDirect.Sub(refilled)
	if err != nil {
		return err
	}
	fmt.Printf("CSMs - fill(as_array(CSMs)) norm = %e\n", zero.Norm())

	// 3. Compute maps from coil images to compare against the direct route.
	coilImages := coilsense.NewCoilImages()
	if err := coilImages.Calculate(processed); err != nil {
		return err
	}
	fmt.Println("B) calculating from coil images...")
	srssFromImages := coilsense.NewMap(coilsense.SRSS{Iterations: iterations})
	if err := srssFromImages.CalculateFromImages(coilImages); err != nil {
		return err
	}
	diff, err := srssFromImages.Sub(srssDirect)
	if err != nil {
		return err
	}
	fmt.Printf("difference between A and B: %e (map norm %e)\n", diff.Norm(), srssDirect.Norm())

	// 4. Repeat with the Inati adaptive method.
	fmt.Println("using Inati method...")
	fmt.Println("A) calculating from raw data...")
	inatiDirect, err := eng.EstimateSensitivity(processed, coilsense.Inati{})
	if err != nil {
		return err
	}
	fmt.Println("B) calculating from coil images...")
	inatiFromImages := coilsense.NewMap(coilsense.Inati{})
	if err := inatiFromImages.CalculateFromImages(coilImages); err != nil {
		return err
	}
	inatiDiff, err := inatiFromImages.Sub(inatiDirect)
	if err != nil {
		return err
	}
	fmt.Printf("difference between A and B: %e\n", inatiDiff.Norm())

	srssMap := srssDirect.Item(0)
	fmt.Printf("SRSS map magnitude (coil 0): %s\n", report.Describe(srssMap.Magnitude(0)))

	if figures {
		viewer, err := visualization.NewViewer(outDir)
		if err != nil {
			return err
		}
		fmt.Printf("writing coil map figures to %s...\n", outDir)
		if err := viewer.SaveCoilPanel(srssMap, "srss_map_magnitude"); err != nil {
			return err
		}
		if err := viewer.SaveCoilPanel(inatiDirect.Item(0), "inati_map_magnitude"); err != nil {
			return err
		}
		if err := viewer.SavePhase(inatiDirect.Item(0), 0, "inati_map_phase_coil00"); err != nil {
			return err
		}
	}
	return nil
}

// Package ocr extracts text from screen capture images using the Tesseract
// engine and cleans the output for summarization and classification.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

var (
	// ErrInvalidExtension indicates that the file does not have a .png extension.
	ErrInvalidExtension = errors.New("file must have .png extension")
	// ErrPathIsDirectory indicates that the provided path is a directory, not a file.
	ErrPathIsDirectory = errors.New("path is a directory")
	// ErrFileEmpty indicates that the file is empty.
	ErrFileEmpty = errors.New("file is empty")
	// ErrNoText indicates that both OCR passes found no recognizable text.
	// Blank screens, lock screens, and pure-graphics captures hit this.
	ErrNoText = errors.New("no text recognized")
)

// TesseractConfig holds the engine parameters for OCR runs.
type TesseractConfig struct {
	// Language specifies the OCR language model (e.g., "eng").
	// Multiple languages can be combined with "+" (e.g., "eng+deu").
	Language string

	// OEM (OCR Engine Mode): 0 legacy, 1 LSTM, 2 both, 3 default.
	OEM int

	// PSM (Page Segmentation Mode) for the primary pass. 6 (uniform
	// block) works well for full-screen application windows.
	PSM int

	// FallbackPSM is used for the single retry when the primary pass
	// yields no text. 11 (sparse text) picks up scattered UI labels that
	// block segmentation misses. Zero disables the retry.
	FallbackPSM int

	// DPI hints the input resolution to the engine. Screen captures
	// carry no density metadata, so the hint matters.
	DPI int

	// TimeoutSeconds bounds each engine invocation.
	TimeoutSeconds int
}

// Processor runs the external tesseract binary over capture images. All
// processing uses the system tesseract installation via PATH.
type Processor struct {
	config  TesseractConfig
	cleaner *Cleaner
	log     *logger.Logger
}

// NewProcessor creates an OCR processor with the given engine configuration.
func NewProcessor(config TesseractConfig, log *logger.Logger) *Processor {
	return &Processor{
		config:  config,
		cleaner: NewCleaner(),
		log:     log,
	}
}

// ProcessImage performs OCR on one capture image and returns cleaned text.
// When the primary pass finds nothing, a single retry runs with the fallback
// segmentation mode; if that also finds nothing, ErrNoText is returned so
// the caller can decide whether a blank capture is a failure.
func (p *Processor) ProcessImage(ctx context.Context, imagePath string) (string, error) {
	err := p.validateFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("validate capture image: %w", err)
	}

	raw, err := p.runTesseract(ctx, imagePath, p.config.PSM)
	if err != nil {
		return "", fmt.Errorf("run tesseract: %w", err)
	}

	text := p.cleaner.Clean(raw)
	if text != "" {
		return text, nil
	}

	if p.config.FallbackPSM == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoText, filepath.Base(imagePath))
	}

	p.log.Warn(
		"No text at PSM %d for %s, retrying with PSM %d",
		p.config.PSM,
		filepath.Base(imagePath),
		p.config.FallbackPSM,
	)

	raw, err = p.runTesseract(ctx, imagePath, p.config.FallbackPSM)
	if err != nil {
		return "", fmt.Errorf("tesseract retry: %w", err)
	}

	text = p.cleaner.Clean(raw)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, filepath.Base(imagePath))
	}

	return text, nil
}

// validateFile checks that the capture image exists and is a non-empty PNG.
func (p *Processor) validateFile(imagePath string) error {
	if !strings.HasSuffix(strings.ToLower(imagePath), ".png") {
		return fmt.Errorf(
			"file must have .png extension %s: %w",
			imagePath,
			ErrInvalidExtension,
		)
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		return fmt.Errorf("access file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf(
			"path is a directory %s: %w",
			imagePath,
			ErrPathIsDirectory,
		)
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty %s: %w", imagePath, ErrFileEmpty)
	}

	return nil
}

// runTesseract executes one engine pass with the given segmentation mode.
func (p *Processor) runTesseract(ctx context.Context, imagePath string, psm int) (string, error) {
	timeout := time.Duration(p.config.TimeoutSeconds) * time.Second

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "tesseract",
		filepath.Clean(imagePath),
		"stdout",
		"-l", p.config.Language,
		"--dpi", strconv.Itoa(p.config.DPI),
		"--oem", strconv.Itoa(p.config.OEM),
		"--psm", strconv.Itoa(psm),
	)

	// Keep the engine single-threaded so a parallel stage runner controls
	// total CPU use itself.
	cmd.Env = append(os.Environ(),
		"OMP_THREAD_LIMIT=1",
		"OMP_NUM_THREADS=1",
		"OPENBLAS_NUM_THREADS=1",
	)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf(
				"tesseract timed out after %ds on %s: %w",
				p.config.TimeoutSeconds,
				filepath.Base(imagePath),
				err,
			)
		}

		return "", fmt.Errorf(
			"tesseract execution failed: %w (stderr: %s)",
			err,
			stderr.String(),
		)
	}

	return stdout.String(), nil
}

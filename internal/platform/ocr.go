package platform

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// recognizeImage runs the tesseract recognizer over a captured image and
// returns the recognized text with the recognizer's mean word confidence.
func recognizeImage(ctx context.Context, imagePath string) (*Content, error) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, fmt.Errorf("no text recognizer available: %w", err)
	}

	out, err := exec.CommandContext(ctx, "tesseract", imagePath, "stdout", "tsv").Output()
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	text, confidence, words := parseRecognizerTSV(string(out))
	if words == 0 {
		return nil, fmt.Errorf("recognizer found no text")
	}

	return &Content{
		FullText: text,
		Structured: map[string]any{
			"word_count": words,
		},
		Confidence: confidence,
	}, nil
}

// parseRecognizerTSV extracts recognized words and the mean per-word
// confidence from tesseract's TSV output. Confidence values below zero mark
// non-text rows and are ignored.
func parseRecognizerTSV(tsv string) (text string, confidence float64, words int) {
	var b strings.Builder
	var confSum float64

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header row
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		confSum += conf
		words++
	}

	if words == 0 {
		return "", 0, 0
	}
	return b.String(), confSum / float64(words) / 100.0, words
}

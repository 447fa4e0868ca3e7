package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/pixel"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDiffLocation(t *testing.T) {
	type in struct {
		first  string
		second string
		third  codec.Format
	}

	type want struct {
		first string
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"out",
				"screens/home.png",
				codec.PNG,
			},
			want{
				"out/screens/home.png.diff.png",
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"out/",
				"/var/screens/home.png",
				codec.JPEG,
			},
			want{
				"out/home.png.diff.jpeg",
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{
				"s3://bucket/diffs/",
				"https://example.com/home.jpg?v=2",
				codec.JPG,
			},
			want{
				"s3://bucket/diffs/home.jpg.diff.jpg",
			},
		},
	}
	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := diffLocation(in.first, in.second, in.third)
			if diff := cmp.Diff(want.first, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func writePNG(t *testing.T, filename string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	directory := t.TempDir()
	writePNG(t, filepath.Join(directory, "baseline.png"), color.NRGBA{255, 255, 255, 255})
	writePNG(t, filepath.Join(directory, "same.png"), color.NRGBA{255, 255, 255, 255})
	writePNG(t, filepath.Join(directory, "other.png"), color.NRGBA{0, 0, 0, 255})

	cfg := Config{
		OutputDirectory: "diffs",
		OutputFormat:    "png",
		Directory:       directory,
		BaseColor:       "255,0,0",
		TestColor:       "#00ff00",
		JPEGQuality:     95,
		Concurrency:     2,
	}
	r, err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "baseline.png", []string{"same.png", "other.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.IsSame {
		t.Errorf("Expected the report to contain a difference")
	}
	if diff := cmp.Diff([]bool{true, false}, []bool{r.Results[0].IsSame, r.Results[1].IsSame}); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("diffs/other.png.diff.png", r.Results[1].OutputImage); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(directory, "diffs", "other.png.diff.png")); err != nil {
		t.Errorf("Expected the diff image to be written: %v", err)
	}

	cfg.BaseColor = "red"
	if _, err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "baseline.png", []string{"same.png"}); err == nil {
		t.Errorf("Expected an error for an invalid color")
	}
}

func TestRun_SameNameInDifferentDirectories(t *testing.T) {
	directory := t.TempDir()
	for _, dir := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(directory, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writePNG(t, filepath.Join(directory, "baseline.png"), color.NRGBA{255, 255, 255, 255})
	writePNG(t, filepath.Join(directory, "a", "shot.png"), color.NRGBA{255, 255, 255, 255})
	writePNG(t, filepath.Join(directory, "b", "shot.png"), color.NRGBA{0, 0, 0, 255})

	cfg := Config{
		OutputDirectory: "out",
		OutputFormat:    "png",
		Directory:       directory,
		BaseColor:       pixel.DefaultBaseColor.String(),
		TestColor:       pixel.DefaultTestColor.String(),
		JPEGQuality:     95,
		Concurrency:     2,
	}
	r, err := run(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "baseline.png", []string{"a/shot.png", "b/shot.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"out/a/shot.png.diff.png", "out/b/shot.png.diff.png"}, []string{r.Results[0].OutputImage, r.Results[1].OutputImage}); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	for i, want := range []color.NRGBA{{255, 255, 255, 255}, pixelColor(pixel.Blend(pixel.DefaultBaseColor, pixel.DefaultTestColor))} {
		f, err := os.Open(filepath.Join(directory, filepath.FromSlash(r.Results[i].OutputImage)))
		if err != nil {
			t.Fatalf("Expected the diff image to be written: %v", err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(color.Color(want), color.NRGBAModel.Convert(img.At(0, 0))); diff != "" {
			t.Errorf("%s (-want +got):\n%s", r.Results[i].Test, diff)
		}
	}
}

func pixelColor(c pixel.Color) color.NRGBA {
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

func TestOutputLocations_Duplicate(t *testing.T) {
	cfg := Config{OutputDirectory: "out"}

	_, err := outputLocations(cfg, []string{"/a/shot.png", "/b/shot.png"}, codec.PNG)
	if !errors.Is(err, ErrDuplicateOutput) {
		t.Errorf("Expected ErrDuplicateOutput, got %v", err)
	}

	got, err := outputLocations(Config{}, []string{"a.png", "b.png"}, codec.PNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"", ""}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

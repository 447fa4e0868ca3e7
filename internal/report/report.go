package report

import (
	"encoding/json"
	"fmt"
	"io"
	diffimage "pixel-compare/internal/diff/image"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/xerrors"
)

type Entry struct {
	Test        string                `json:"test"`
	IsSame      bool                  `json:"isSame"`
	DiffAmount  float64               `json:"diffAmount"`
	Mismatched  int64                 `json:"mismatched"`
	OutputImage string                `json:"outputImage,omitempty"`
	Regions     []diffimage.Rectangle `json:"regions"`
}

type Report struct {
	IsSame  bool    `json:"isSame"`
	Results []Entry `json:"results"`
}

func New(entries []Entry) *Report {
	r := &Report{
		IsSame:  true,
		Results: entries,
	}
	if r.Results == nil {
		r.Results = []Entry{}
	}
	for _, e := range entries {
		if !e.IsSame {
			r.IsSame = false
		}
	}
	return r
}

func NewEntry(test string, outputImage string, result *diffimage.Result) Entry {
	return Entry{
		Test:        test,
		IsSame:      result.IsSame,
		DiffAmount:  result.DiffAmount,
		Mismatched:  result.Mismatched,
		OutputImage: outputImage,
		Regions:     result.Regions(diffimage.DefaultRegionMinSize, diffimage.DefaultRegionMergeDistance),
	}
}

func (r *Report) WriteJSON(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(r); err != nil {
		return xerrors.Errorf("failed to encode report: %w", err)
	}
	return nil
}

var (
	sameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	diffStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	detailStyle = lipgloss.NewStyle().Faint(true).PaddingLeft(7)
)

func (r *Report) WriteText(w io.Writer) error {
	for _, e := range r.Results {
		status := sameStyle.Render("SAME")
		if !e.IsSame {
			status = diffStyle.Render("DIFF")
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %.4f%% (%d px)\n", status, e.Test, e.DiffAmount*100, e.Mismatched); err != nil {
			return xerrors.Errorf("failed to write report: %w", err)
		}
		for _, region := range e.Regions {
			if _, err := fmt.Fprintln(w, detailStyle.Render(fmt.Sprintf("region %dx%d at (%d,%d)", region.Width, region.Height, region.X, region.Y))); err != nil {
				return xerrors.Errorf("failed to write report: %w", err)
			}
		}
		if e.OutputImage != "" {
			if _, err := fmt.Fprintln(w, detailStyle.Render("wrote "+e.OutputImage)); err != nil {
				return xerrors.Errorf("failed to write report: %w", err)
			}
		}
	}
	return nil
}

package pipeline

import (
	"encoding/json"
	"os"

	"hybridmux/internal/faults"
)

// rpuEdit is the dovi_tool editor configuration for active-area and frame
// timing adjustments.
type rpuEdit struct {
	ActiveArea activeArea       `json:"active_area"`
	Remove     []string         `json:"remove"`
	Duplicate  []duplicateRange `json:"duplicate"`
}

type activeArea struct {
	Crop    bool         `json:"crop"`
	Presets []areaPreset `json:"presets"`
}

type areaPreset struct {
	ID     int `json:"id"`
	Left   int `json:"left"`
	Right  int `json:"right"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

type duplicateRange struct {
	Source int `json:"source"`
	Offset int `json:"offset"`
	Length int `json:"length"`
}

func buildRPUEdit(crop cropPlan, shift frameShift) rpuEdit {
	return rpuEdit{
		ActiveArea: activeArea{
			Crop: crop.Crop,
			Presets: []areaPreset{{
				ID:     0,
				Top:    crop.Amount,
				Bottom: crop.Amount,
			}},
		},
		Remove:    []string{shift.RemoveRange},
		Duplicate: []duplicateRange{{Length: shift.DuplicateLength}},
	}
}

// hdr10plusEdit is the hdr10plus_tool editor configuration. It carries only
// timing adjustments; HDR10+ metadata has no active-area concept.
type hdr10plusEdit struct {
	Remove    []string         `json:"remove"`
	Duplicate []duplicateRange `json:"duplicate"`
}

func buildHDR10PlusEdit(shift frameShift) hdr10plusEdit {
	return hdr10plusEdit{
		Remove:    []string{shift.RemoveRange},
		Duplicate: []duplicateRange{{Length: shift.DuplicateLength}},
	}
}

func writeEditFile(path string, edit any) error {
	data, err := json.MarshalIndent(edit, "", "  ")
	if err != nil {
		return faults.Wrap(faults.ErrIO, "pipeline", "edit_file", "cannot encode metadata edits", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return faults.Wrap(faults.ErrIO, "pipeline", "edit_file", "cannot write metadata edits", err)
	}
	return nil
}

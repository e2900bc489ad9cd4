package simulationloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/google/uuid"
)

func readMeta(file string) (SimulationMeta, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return SimulationMeta{}, fmt.Errorf("could not read simulation meta file: %w", err)
	}

	var meta SimulationMeta
	if err := json.Unmarshal(content, &meta); err != nil {
		return SimulationMeta{}, fmt.Errorf("could not unmarshal simulation meta json: %w", err)
	}

	return meta, nil
}

// Fork copies the simulation forkSim into a new simulation newSim and points
// the copy's meta back at its origin. When newSim is empty a code is derived
// from the fork. Returns the new simulation's code.
func Fork(simulationsFolder, forkSim, newSim string) (string, error) {
	if newSim == "" {
		newSim = fmt.Sprintf("%s-%s", forkSim, uuid.NewString()[:8])
	}

	src := path.Join(simulationsFolder, forkSim)
	dst := path.Join(simulationsFolder, newSim)

	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("could not find simulation %s to fork: %w", forkSim, err)
	}
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("simulation %s already exists", newSim)
	}

	if err := copyDirFilesOnly(src, dst); err != nil {
		return "", fmt.Errorf("could not copy simulation %s: %w", forkSim, err)
	}

	metaFile := path.Join(dst, "reverie", "meta.json")
	meta, err := readMeta(metaFile)
	if err != nil {
		return "", err
	}

	meta.ForkSimCode = forkSim
	if err := writeJson(metaFile, meta); err != nil {
		return "", fmt.Errorf("could not update fork meta: %w", err)
	}

	return newSim, nil
}

// WriteTempoFiles publishes which simulation is live and what step it is on.
// The frontend reads these to find the simulation's storage folder.
func WriteTempoFiles(tempFolder, simCode string, step int) error {
	if err := writeJson(path.Join(tempFolder, "curr_sim_code.json"), map[string]string{"sim_code": simCode}); err != nil {
		return fmt.Errorf("could not write current sim code: %w", err)
	}

	if err := writeJson(path.Join(tempFolder, "curr_step.json"), map[string]int{"step": step}); err != nil {
		return fmt.Errorf("could not write current step: %w", err)
	}

	return nil
}

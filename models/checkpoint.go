package models

import (
	"github.com/Pliploop/MuLOOC/core/model"
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// weightedHead is a head whose parameters can be exported and restored.
type weightedHead interface {
	model.Head
	Weights() model.HeadWeights
	SetWeights(model.HeadWeights) error
}

// Checkpoint captures the head weights and hyperparameters of m. Every head
// must support weight export.
func (m *MuLOOC) Checkpoint() (*model.Checkpoint, error) {
	ckpt := &model.Checkpoint{
		Model:       "MuLOOC",
		EncoderDim:  m.encoder.EmbedDim(),
		Temperature: m.temperature,
		FeatureHead: int(m.featHead),
		Heads:       make([]model.HeadWeights, len(m.heads)),
	}
	for k, h := range m.heads {
		wh, ok := h.(weightedHead)
		if !ok {
			return nil, errors.NewModelError("MuLOOC.Checkpoint", "head "+h.Name()+" does not export weights", nil)
		}
		ckpt.Heads[k] = wh.Weights()
		ckpt.Heads[k].Target = m.specs[k].Target
	}
	return ckpt, nil
}

// SaveHeads writes a gob checkpoint of the head weights to path.
func (m *MuLOOC) SaveHeads(path string) error {
	ckpt, err := m.Checkpoint()
	if err != nil {
		return err
	}
	if err := model.SaveCheckpoint(ckpt, path); err != nil {
		return errors.NewModelError("MuLOOC.SaveHeads", "write failed", err)
	}
	return nil
}

// LoadHeadWeights restores head weights from a checkpoint written by
// SaveHeads. Head count, names and dimensions must match.
func (m *MuLOOC) LoadHeadWeights(path string) error {
	ckpt, err := model.LoadCheckpoint(path)
	if err != nil {
		return errors.NewModelError("MuLOOC.LoadHeadWeights", "read failed", err)
	}
	return m.ApplyCheckpoint(ckpt)
}

// ApplyCheckpoint restores head weights from ckpt.
func (m *MuLOOC) ApplyCheckpoint(ckpt *model.Checkpoint) error {
	if ckpt.EncoderDim != m.encoder.EmbedDim() {
		return errors.NewDimensionError("MuLOOC.ApplyCheckpoint", m.encoder.EmbedDim(), ckpt.EncoderDim, 1)
	}
	if len(ckpt.Heads) != len(m.heads) {
		return errors.NewValidationError("heads", "checkpoint head count differs from model", len(ckpt.Heads))
	}
	for k, h := range m.heads {
		hw := ckpt.Heads[k]
		if hw.Name != h.Name() {
			return errors.NewValidationError("heads", "checkpoint head "+hw.Name+" does not match "+h.Name(), k)
		}
		wh, ok := h.(weightedHead)
		if !ok {
			return errors.NewModelError("MuLOOC.ApplyCheckpoint", "head "+h.Name()+" does not accept weights", nil)
		}
		if err := wh.SetWeights(hw); err != nil {
			return err
		}
	}
	return nil
}

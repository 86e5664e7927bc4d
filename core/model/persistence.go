package model

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// SaveCheckpoint はチェックポイントをファイルに保存する
//
// パラメータ:
//   - ckpt: 保存するチェックポイント
//   - filename: 保存先のファイルパス
//
// 戻り値:
//   - error: 保存に失敗した場合のエラー
//
// 使用例:
//
//	ckpt := m.Checkpoint()
//	err := model.SaveCheckpoint(ckpt, "heads.gob")
func SaveCheckpoint(ckpt *Checkpoint, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return SaveCheckpointToWriter(ckpt, file)
}

// LoadCheckpoint はファイルからチェックポイントを読み込む
//
// パラメータ:
//   - filename: 読み込み元のファイルパス
//
// 戻り値:
//   - *Checkpoint: 読み込んだチェックポイント
//   - error: 読み込みに失敗した場合のエラー
func LoadCheckpoint(filename string) (*Checkpoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return LoadCheckpointFromReader(file)
}

// SaveCheckpointToWriter はチェックポイントをio.Writerに保存する
func SaveCheckpointToWriter(ckpt *Checkpoint, w io.Writer) error {
	if err := ckpt.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(ckpt); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpointFromReader はio.Readerからチェックポイントを読み込む
func LoadCheckpointFromReader(r io.Reader) (*Checkpoint, error) {
	var ckpt Checkpoint
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if err := ckpt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}
	return &ckpt, nil
}

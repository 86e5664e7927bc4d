// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 対照学習エンジン（セグメントサンプラー、行列ビルダー、損失集約）が返す
// 構造化されたエラー情報を定義します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("MuLOOC-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが設定されている場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// UndefinedLossWarning は損失が定義できない場合に発生する警告です。
// 例えば、バリアント行列にバッチ内の正例ペアが一つも存在しない場合など。
type UndefinedLossWarning struct {
	Head      string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedLossWarning) Error() string {
	return fmt.Sprintf("loss for head '%s' is ill-defined and being set to %f due to %s.", w.Head, w.Result, w.Condition)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UndefinedLossWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("head", w.Head).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedLossWarning")
}

// NewUndefinedLossWarning は新しいUndefinedLossWarningを作成します。
func NewUndefinedLossWarning(head, condition string, result float64) *UndefinedLossWarning {
	return &UndefinedLossWarning{Head: head, Condition: condition, Result: result}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("mulooc: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mulooc: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("mulooc: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError はモデル（エンコーダ、射影ヘッド、損失）に関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mulooc: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mulooc: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// InputShapeError は入力テンソルの形状が期待と異なる場合のエラーです。
// ラベルテンソルのランクが2でも3でもない場合や、
// バッチ数・ビュー数がレイアウトと一致しない場合に使用します。
type InputShapeError struct {
	Phase    string // "labels", "embeddings", "collate" など
	Expected []int  // 期待される形状
	Got      []int  // 実際の形状
	Feature  string // 問題のある拡張次元名（オプション）
}

func (e *InputShapeError) Error() string {
	expectedStr := fmt.Sprintf("%v", e.Expected)
	gotStr := fmt.Sprintf("%v", e.Got)
	if e.Feature != "" {
		return fmt.Sprintf("mulooc: input shape mismatch in %s phase for '%s'. Expected shape %s, got %s",
			e.Phase, e.Feature, expectedStr, gotStr)
	}
	return fmt.Sprintf("mulooc: input shape mismatch in %s phase. Expected shape %s, got %s",
		e.Phase, expectedStr, gotStr)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InputShapeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("phase", e.Phase).
		Ints("expected", e.Expected).
		Ints("got", e.Got).
		Str("feature", e.Feature).
		Str("type", "InputShapeError")
}

// NewInputShapeError は新しいInputShapeErrorを作成します。
func NewInputShapeError(phase string, expected, got []int) error {
	err := &InputShapeError{
		Phase:    phase,
		Expected: expected,
		Got:      got,
	}
	return errors.WithStack(err)
}

// NewFeatureShapeError は拡張次元名付きのInputShapeErrorを作成します。
func NewFeatureShapeError(phase, feature string, expected, got []int) error {
	err := &InputShapeError{
		Phase:    phase,
		Expected: expected,
		Got:      got,
		Feature:  feature,
	}
	return errors.WithStack(err)
}

// HeadMatrixMismatchError は射影ヘッドの数が利用可能な対照行列の数を超える場合のエラーです。
// 実行時の状態ではなく設定のバグを示すため、損失計算の前に必ず返されます。
type HeadMatrixMismatchError struct {
	Heads    int
	Matrices int
	Missing  string // 明示的に指定されたが存在しない行列キー（オプション）
}

func (e *HeadMatrixMismatchError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("mulooc: head targets matrix '%s' which is not produced for this batch (%d heads, %d matrices)",
			e.Missing, e.Heads, e.Matrices)
	}
	return fmt.Sprintf("mulooc: number of heads (%d) exceeds number of contrastive matrices (%d)", e.Heads, e.Matrices)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *HeadMatrixMismatchError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("heads", e.Heads).
		Int("matrices", e.Matrices).
		Str("missing", e.Missing).
		Str("type", "HeadMatrixMismatchError")
}

// NewHeadMatrixMismatchError は新しいHeadMatrixMismatchErrorを作成し、スタックトレースを付与します。
func NewHeadMatrixMismatchError(heads, matrices int, missing string) error {
	err := &HeadMatrixMismatchError{Heads: heads, Matrices: matrices, Missing: missing}
	return errors.WithStack(err)
}

// DecodeError は音声ファイルの読み込みに失敗した場合の回復可能なエラーです。
// 破損したファイル、I/Oエラー、短すぎる音声などが該当します。
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("mulooc: failed to decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DecodeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		AnErr("cause", e.Err).
		Str("type", "DecodeError")
}

// NewDecodeError は新しいDecodeErrorを作成し、スタックトレースを付与します。
func NewDecodeError(path string, err error) error {
	return errors.WithStack(&DecodeError{Path: path, Err: err})
}

// DatasetExhaustedError は連続したアイテムがすべて読み込めず、
// リトライ上限に達した場合のエラーです。
type DatasetExhaustedError struct {
	Start    int
	Attempts int
	Last     error
}

func (e *DatasetExhaustedError) Error() string {
	return fmt.Sprintf("mulooc: dataset exhausted after %d attempts starting at index %d: %v", e.Attempts, e.Start, e.Last)
}

func (e *DatasetExhaustedError) Unwrap() error {
	return e.Last
}

// NewDatasetExhaustedError は新しいDatasetExhaustedErrorを作成し、スタックトレースを付与します。
func NewDatasetExhaustedError(start, attempts int, last error) error {
	return errors.WithStack(&DatasetExhaustedError{Start: start, Attempts: attempts, Last: last})
}

// IsRecoverable はエラーがデータ読み込み由来で、次のインデックスで再試行できるかを判定します。
// DatasetExhaustedError は原因にDecodeErrorを含んでいても再試行できません。
func IsRecoverable(err error) bool {
	var exhausted *DatasetExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return true
	}
	var panicErr *PanicError
	return errors.As(err, &panicErr)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	数値計算のエラー型
//
// ===========================================================================

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf、オーバーフロー、アンダーフローなどを検出します。
type NumericalInstabilityError struct {
	Operation string                 // 発生した操作（例: "ntxent_loss", "similarity"）
	Values    []float64              // 問題のある値
	Context   map[string]interface{} // デバッグ用の追加コンテキスト情報
	Iteration int                    // 発生したステップ番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("mulooc: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
		Context:   make(map[string]interface{}),
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrNotImplemented は機能が未実装の場合のエラーです。
	ErrNotImplemented = New("not implemented")

	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrTooShort は音声が要求されたウィンドウより短い場合のエラーです。
	ErrTooShort = New("audio shorter than requested window")

	// ErrNotFitted は学習前のモデルで予測しようとした場合のエラーです。
	ErrNotFitted = New("model is not fitted")
)

package model

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// json は標準ライブラリ互換の設定。float64は最短表現で出力されるため、
// 保存・読み込みでビット単位で同一の値に戻る。
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SaveJSON はvをJSONとしてファイルに保存する
//
// 一時ファイルに書いてからリネームするため、途中で失敗しても既存のファイルは壊れない。
//
// 使用例:
//
//	err := model.SaveJSON(doc, filepath.Join(dir, "scaler.json"))
func SaveJSON(v interface{}, filename string) error {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := SaveJSONToWriter(v, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// LoadJSON はファイルからJSONを読み込みvにデコードする
func LoadJSON(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return LoadJSONFromReader(v, file)
}

// SaveJSONToWriter はvをインデント付きJSONとしてio.Writerに書き込む
func SaveJSONToWriter(v interface{}, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// LoadJSONFromReader はio.ReaderからJSONを読み込む。未知のフィールドはエラーにする。
func LoadJSONFromReader(v interface{}, r io.Reader) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	return nil
}

package operations

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt marks artifacts stored as zstd frames.
const CompressedExt = ".zst"

// IsCompressed reports whether path names a compressed artifact.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

// CompressZstd writes a zstd-compressed copy of inputPath to outputPath.
// outputPath must not exist. The source modification time is carried over.
func CompressZstd(inputPath, outputPath string) (err error) {
	inFile, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer inFile.Close()

	info, err := inFile.Stat()
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if err != nil {
			outFile.Close()
			os.Remove(outputPath)
		}
	}()

	writer, err := zstd.NewWriter(outFile)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err = io.Copy(writer, inFile); err != nil {
		writer.Close()
		return fmt.Errorf("compress file: %w", err)
	}
	if err = writer.Close(); err != nil {
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	if err = outFile.Sync(); err != nil {
		return fmt.Errorf("sync output file: %w", err)
	}
	if err = outFile.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return preserveTimes(outputPath, info)
}

// DecompressZstd expands a zstd artifact into outputPath, truncating it.
func DecompressZstd(inputPath, outputPath string) (err error) {
	inFile, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open compressed file: %w", err)
	}
	defer inFile.Close()

	info, err := inFile.Stat()
	if err != nil {
		return fmt.Errorf("stat compressed file: %w", err)
	}

	reader, err := zstd.NewReader(inFile)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer reader.Close()

	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if err != nil {
			outFile.Close()
		}
	}()

	if _, err = io.Copy(outFile, reader); err != nil {
		return fmt.Errorf("decompress file: %w", err)
	}
	if err = outFile.Sync(); err != nil {
		return fmt.Errorf("sync output file: %w", err)
	}
	if err = outFile.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	if err = os.Chmod(outputPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod output file: %w", err)
	}
	return preserveTimes(outputPath, info)
}

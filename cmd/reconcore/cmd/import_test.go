package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"document-reconciliation-service/pkg/errors"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImportFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Konto_1200_140125_093000.csv")
	require.NoError(t, os.WriteFile(file, []byte("REF001;14.01.2025;10,00;14.01.2025;;P;Z;1200"), 0o644))

	t.Run("valid file no hint", func(t *testing.T) {
		viper.Set("format", "")
		assert.NoError(t, validateImportFlags(importCmd, []string{file}))
	})

	t.Run("valid hint", func(t *testing.T) {
		viper.Set("format", "BANK_CSV")
		assert.NoError(t, validateImportFlags(importCmd, []string{file}))
	})

	t.Run("invalid hint", func(t *testing.T) {
		viper.Set("format", "QUICKEN")
		assert.Error(t, validateImportFlags(importCmd, []string{file}))
	})

	t.Run("missing file", func(t *testing.T) {
		viper.Set("format", "")
		assert.Error(t, validateImportFlags(importCmd, []string{filepath.Join(dir, "nope.csv")}))
	})

	t.Run("directory", func(t *testing.T) {
		viper.Set("format", "")
		assert.Error(t, validateImportFlags(importCmd, []string{dir}))
	})

	viper.Set("format", "")
}

func TestExitCodeByCategory(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.CategoryImport))
	assert.Equal(t, 2, exitCode(errors.CategoryValidation))
	assert.Equal(t, 3, exitCode(errors.CategoryQueue))
	assert.Equal(t, 4, exitCode(errors.CategoryStorage))
	assert.Equal(t, 1, exitCode(errors.CategoryInternal))
}

func TestHandleErrorExitCodes(t *testing.T) {
	h := NewCLIErrorHandler()

	assert.Equal(t, 0, h.HandleError(nil))
	assert.Equal(t, 2, h.HandleError(
		errors.ImportError(errors.CodeFormatUnrecognized, "x.csv", nil)))
	assert.Equal(t, 3, h.HandleError(
		errors.QueueError(errors.CodeJobNotFound, "job-1", nil)))
	assert.Equal(t, 1, h.HandleError(assert.AnError))
}

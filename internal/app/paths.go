package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirConfigs = "configs"
	dirContent = "configs/content"
	dirData    = "data"
	dirStorage = "storage"
	dirDB      = "storage/db"
	dirBackups = "storage/backups"
	dirTmp     = "storage/tmp"
	dirLogs    = "logs"
)

var (
	configFilePath     = filepath.Join(dirConfigs, "config.json")
	engagementFilePath = filepath.Join(dirData, "engagement.json")

	hooksFilePath   = filepath.Join(dirContent, "hooks.json")
	lexiconFilePath = filepath.Join(dirContent, "lexicon.json")

	dbFilePath       = filepath.Join(dirDB, "plamya.db")
	dbSHMFilePath    = dbFilePath + "-shm"
	dbWALFilePath    = dbFilePath + "-wal"
	dbBackupFilePath = filepath.Join(dirBackups, "plamya_backup_auto.db")

	logFilePath = filepath.Join(dirLogs, "bot.log")
	errLogPath  = filepath.Join(dirLogs, "errors.log")
)

func initAppLayout() {
	dirs := []string{dirConfigs, dirContent, dirData, dirStorage, dirDB, dirBackups, dirTmp, dirLogs}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("⚠️ Не удалось создать каталог %s: %v\n", dir, err)
		}
	}

	migrateLegacyFile("config.json", configFilePath)
	migrateLegacyFile("engagement.json", engagementFilePath)
	migrateLegacyFile("hooks.json", hooksFilePath)
	migrateLegacyFile("lexicon.json", lexiconFilePath)

	migrateLegacyFile("plamya.db", dbFilePath)
	migrateLegacyFile("plamya.db-shm", dbSHMFilePath)
	migrateLegacyFile("plamya.db-wal", dbWALFilePath)

	migrateLegacyFile("bot.log", logFilePath)
	migrateLegacyFile("errors.log", errLogPath)
}

func migrateLegacyFile(oldPath, newPath string) {
	info, err := os.Stat(oldPath)
	if err != nil || info.IsDir() {
		return
	}
	if _, err := os.Stat(newPath); err == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		fmt.Printf("⚠️ Не удалось создать каталог для %s: %v\n", newPath, err)
		return
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		fmt.Printf("⚠️ Не удалось переместить %s -> %s: %v\n", oldPath, newPath, err)
	}
}

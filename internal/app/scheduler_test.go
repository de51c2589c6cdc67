package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPrepareBackupFileCopiesDatabase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bot.db")
	content := []byte("содержимое базы для проверки копии")
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	// Каталог назначения еще не существует
	dst := filepath.Join(dir, "backups", "bot_backup.db")
	if err := prepareBackupFile(src, dst); err != nil {
		t.Fatalf("копирование не удалось: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("копия не создана: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("копия не совпадает с оригиналом: %q", got)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("временный файл не удален")
	}
}

func TestPrepareBackupFileOverwritesStaleCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bot.db")
	dst := filepath.Join(dir, "bot_backup.db")
	if err := os.WriteFile(src, []byte("свежие данные"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("прошлонедельная копия"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := prepareBackupFile(src, dst); err != nil {
		t.Fatalf("перезапись не удалась: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "свежие данные" {
		t.Fatalf("старая копия не перезаписана: %q", got)
	}
}

func TestPrepareBackupFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := prepareBackupFile(filepath.Join(dir, "нет.db"), filepath.Join(dir, "копия.db"))
	if !os.IsNotExist(err) {
		t.Fatalf("ожидалась ошибка отсутствия исходника, получено: %v", err)
	}
}

func TestRussianMonth(t *testing.T) {
	cases := map[time.Month]string{
		time.January:  "январе",
		time.May:      "мае",
		time.December: "декабре",
	}
	for m, want := range cases {
		if got := russianMonth(m); got != want {
			t.Fatalf("russianMonth(%v) = %q, ожидалось %q", m, got, want)
		}
	}
}

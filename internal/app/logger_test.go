package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsAlertLine(t *testing.T) {
	cases := []struct {
		line  string
		alert bool
	}{
		{"✅ Бот запущен", false},
		{"⚠️ Не удалось сохранить", true},
		{"❌ Ошибка отправки", true},
		{"💥 PANIC [handler]: boom", true},
		{"📊 Исход собран", false},
	}
	for _, tc := range cases {
		if got := isAlertLine([]byte(tc.line)); got != tc.alert {
			t.Fatalf("isAlertLine(%q) = %v, ожидалось %v", tc.line, got, tc.alert)
		}
	}
}

func TestSplitWriterRoutesAlerts(t *testing.T) {
	var main, alert bytes.Buffer
	w := &splitWriter{main: &main, alert: &alert}

	_, _ = w.Write([]byte("✅ обычная строка\n"))
	_, _ = w.Write([]byte("❌ тревожная строка\n"))

	if !strings.Contains(main.String(), "обычная строка") || !strings.Contains(main.String(), "тревожная строка") {
		t.Fatalf("основной лог должен содержать все строки: %q", main.String())
	}
	if strings.Contains(alert.String(), "обычная строка") {
		t.Fatalf("обычная строка попала в errors.log: %q", alert.String())
	}
	if !strings.Contains(alert.String(), "тревожная строка") {
		t.Fatalf("тревожная строка не попала в errors.log: %q", alert.String())
	}
}

func TestPruneArchivesKeepsFreshest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"bot-20250101-000000.log.gz",
		"bot-20250102-000000.log.gz",
		"bot-20250103-000000.log",
		"bot-20250104-000000.log.gz",
		"bot-20250105-000000.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// Чужие файлы трогать нельзя
	if err := os.WriteFile(filepath.Join(dir, "errors-20250101-000000.log"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	pruneArchives(dir, "bot", 2)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	for _, want := range []string{"bot-20250104-000000.log.gz", "bot-20250105-000000.log", "errors-20250101-000000.log"} {
		if !containsString(left, want) {
			t.Fatalf("файл %s не должен был удаляться, осталось: %v", want, left)
		}
	}
	if len(left) != 3 {
		t.Fatalf("ожидалось 3 файла после чистки, осталось %d: %v", len(left), left)
	}
}

func TestRotateIfStaleArchivesYesterdayFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.log")
	if err := os.WriteFile(path, []byte("старые записи\n"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().AddDate(0, 0, -2)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	fresh := rotateIfStale(path, "bot", nil)
	if fresh == nil {
		t.Fatal("после ротации ожидался новый дескриптор")
	}
	defer fresh.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("новый файл не создан: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("новый файл должен быть пустым, размер %d", info.Size())
	}

	// Сжатие идет в фоне: дожидаемся, пока архив станет .gz
	deadline := time.Now().Add(3 * time.Second)
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		gz := false
		plain := false
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "bot-") {
				if strings.HasSuffix(e.Name(), ".gz") {
					gz = true
				} else {
					plain = true
				}
			}
		}
		if gz && !plain {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("архивный .gz не появился")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

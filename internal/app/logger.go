package app

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

// ==========================================
// ЛОГИРОВАНИЕ
// ==========================================

// Бот публикует один пост в день и ведет немного диалогов, поэтому ротация
// агрессивная: файл до 5 МБ, храним неделю архивов.
const (
	logMaxSizeBytes = 5 << 20
	logKeepBackups  = 7
)

// Строки с этими маркерами дублируются в errors.log
var alertMarkers = []string{"⚠️", "❌", "💥", "PANIC"}

var (
	logMu        sync.Mutex
	botLog       *os.File
	alertLog     *os.File
	appStartedAt time.Time
)

func InitLogger() {
	log.SetFlags(log.Ldate | log.Ltime)
	log.SetPrefix("PLAMYA ")

	logMu.Lock()
	defer logMu.Unlock()

	if botLog != nil {
		return
	}
	if err := os.MkdirAll(dirLogs, 0755); err != nil {
		log.Printf("⚠️ Каталог логов недоступен: %v", err)
		return
	}
	botLog = openLogFile(logFilePath, "bot")
	alertLog = openLogFile(errLogPath, "errors")
	log.SetOutput(newSplitWriter(botLog, alertLog))
}

func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	log.SetOutput(os.Stdout)
	if botLog != nil {
		_ = botLog.Close()
		botLog = nil
	}
	if alertLog != nil {
		_ = alertLog.Close()
		alertLog = nil
	}
}

func markStart() {
	appStartedAt = time.Now()
}

func safeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("💥 PANIC [%s]: %v\n%s", name, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// RotateLogsIfNeeded вызывается фоновым обслуживанием раз в полчаса.
func RotateLogsIfNeeded() {
	logMu.Lock()
	defer logMu.Unlock()
	botLog = rotateIfStale(logFilePath, "bot", botLog)
	alertLog = rotateIfStale(errLogPath, "errors", alertLog)
	log.SetOutput(newSplitWriter(botLog, alertLog))
}

// openLogFile открывает файл лога, предварительно ротируя устаревший.
func openLogFile(path, tag string) *os.File {
	f := rotateIfStale(path, tag, nil)
	if f != nil {
		return f
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("⚠️ Не удалось открыть %s: %v", path, err)
		return nil
	}
	return f
}

// rotateIfStale убирает текущий файл в архив, если он перерос лимит или
// остался со вчерашнего дня, и возвращает свежий дескриптор.
func rotateIfStale(path, tag string, cur *os.File) *os.File {
	info, err := os.Stat(path)
	if err != nil {
		return cur
	}
	oversize := info.Size() >= logMaxSizeBytes
	yesterday := info.Size() > 0 && dayStamp(info.ModTime()) != dayStamp(time.Now())
	if !oversize && !yesterday {
		return cur
	}

	if cur != nil {
		_ = cur.Close()
	}

	dir := filepath.Dir(path)
	archived := filepath.Join(dir, tag+"-"+time.Now().Format("20060102-150405")+".log")
	if err := os.Rename(path, archived); err != nil {
		log.Printf("⚠️ Ротация %s не удалась: %v", path, err)
		return nil
	}
	safeGo("log-gzip-"+tag, func() { gzipLogFile(archived) })
	pruneArchives(dir, tag, logKeepBackups)

	fresh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("⚠️ Не удалось открыть %s после ротации: %v", path, err)
		return nil
	}
	return fresh
}

// pruneArchives оставляет keep свежайших архивов с данным тегом.
// Имена содержат метку времени, так что лексикографический порядок
// совпадает с хронологическим.
func pruneArchives(dir, tag string, keep int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var archives []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, tag+"-") {
			continue
		}
		if !strings.HasSuffix(name, ".log") && !strings.HasSuffix(name, ".log.gz") {
			continue
		}
		archives = append(archives, name)
	}
	if len(archives) <= keep {
		return
	}
	sort.Sort(sort.Reverse(sort.StringSlice(archives)))
	for _, name := range archives[keep:] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

func gzipLogFile(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(path + ".gz")
		return
	}
	_ = gz.Close()
	_ = out.Close()
	_ = os.Remove(path)
}

func dayStamp(t time.Time) string {
	return t.Format("2006-01-02")
}

// splitWriter пишет все в stdout и основной лог, а тревожные строки
// дополнительно в errors.log.
type splitWriter struct {
	main  io.Writer
	alert io.Writer
}

func newSplitWriter(mainFile, alertFile *os.File) io.Writer {
	main := io.Writer(os.Stdout)
	if mainFile != nil {
		main = io.MultiWriter(os.Stdout, mainFile)
	}
	if alertFile == nil {
		return main
	}
	return &splitWriter{main: main, alert: alertFile}
}

func (w *splitWriter) Write(p []byte) (int, error) {
	_, _ = w.main.Write(p)
	if isAlertLine(p) {
		_, _ = w.alert.Write(p)
	}
	return len(p), nil
}

func isAlertLine(p []byte) bool {
	for _, m := range alertMarkers {
		if bytes.Contains(p, []byte(m)) {
			return true
		}
	}
	return false
}

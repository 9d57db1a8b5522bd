package logging

import "gopkg.in/natefinch/lumberjack.v2"

// FileAppender writes console formatted lines to a file that is rotated once it grows past its maximum size.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender returns an appender writing to path, rotating at maxSizeMB megabytes and keeping maxBackups old
// files.
func NewFileAppender(path string, maxSizeMB, maxBackups int) *FileAppender {
	file := &lumberjack.Logger{Filename: path, MaxSize: maxSizeMB, MaxBackups: maxBackups}
	return &FileAppender{ConsoleAppender: NewWriterAppender(file), file: file}
}

// Close closes the current file. Later writes reopen it.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}

// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PaddlePaddle/PaddleDTX/xdb/errorx"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/sgb/config"
	"github.com/PaddlePaddle/PaddleDTX/sgb/errcodes"
)

// Logging holds what a process needs to set up logrus
type Logging struct {
	// Format is nil when the caller keeps logrus' default formatter
	Format *logrus.TextFormatter

	// logrus log level, default info
	Level logrus.Level

	// Writer rotates hourly and keeps 30 days of files
	Writer io.Writer
}

const (
	TimeFormat   = "2006-01-02 15:04:05"
	DefaultLevel = logrus.InfoLevel
)

// InitLog initiates Logging instance.
func InitLog(conf *config.Log, fileName string, isSetFormat bool) (*Logging, error) {
	if conf == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: log")
	}
	logging := &Logging{}
	logPath, level, err := checkLogConf(conf)
	if err != nil {
		return nil, errorx.Wrap(err, "check log conf error")
	}
	logging.Level = level

	writer, err := newWriter(logPath, fileName)
	if err != nil {
		return nil, errorx.Wrap(err, "get log writer error")
	}
	logging.Writer = writer

	if isSetFormat {
		logging.Format = &logrus.TextFormatter{
			ForceColors:     true,
			FullTimestamp:   true,
			TimestampFormat: TimeFormat,
		}
	}
	return logging, nil
}

// Apply installs the writer, level and format on the standard logrus logger
func (l *Logging) Apply() {
	logrus.SetOutput(l.Writer)
	logrus.SetLevel(l.Level)
	if l.Format != nil {
		logrus.SetFormatter(l.Format)
	}
}

func newWriter(logPath, fileName string) (io.Writer, error) {
	logFileName := filepath.Join(logPath, fileName)

	// a soft link always points to the latest file
	w, err := rotatelogs.New(
		logFileName+".%Y%m%d%H",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithMaxAge(720*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeInternal, "new rotatelogs error")
	}
	return w, nil
}

// checkLogConf verifies the log section, an unknown level falls back to info
func checkLogConf(conf *config.Log) (string, logrus.Level, error) {
	path := conf.Path
	if len(path) == 0 {
		return "", 0, errorx.New(errcodes.ErrCodeConfig, "missing config: log.path")
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0777); err != nil {
			return "", 0, errorx.New(errcodes.ErrCodeConfig, "mkdir logs error, err :%v", err)
		}
	}

	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		level = DefaultLevel
	}
	return path, level, nil
}

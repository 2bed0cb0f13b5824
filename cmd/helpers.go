package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/bruin-data/staywarehouse/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func RecoverFromPanic() {
	if err := recover(); err != nil {
		log.Println("=======================================")
		log.Println("staywarehouse encountered an unexpected error, please report the issue.")
		log.Println(err)
		log.Println("=======================================")
		b := bufio.NewScanner(bytes.NewBuffer(debug.Stack()))
		for b.Scan() {
			log.Println(b.Text())
		}
		os.Exit(1)
	}
}

func printErrorJSON(err error) {
	errResponse := ErrorResponse{
		Error: "something went wrong",
	}
	if err != nil {
		errResponse.Error = err.Error()
	}
	js, err := json.Marshal(errResponse)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(js))
}

func printErrorForOutput(output string, err error) {
	if output == "json" {
		printErrorJSON(err)
	} else {
		errorPrinter.Println(err.Error())
	}
}

// makeLogger builds the console logger. --debug wins over the configured level.
func makeLogger(isDebug bool, level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	if isDebug {
		lvl = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = !isDebug
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	if !isDebug {
		cfg.EncoderConfig.CallerKey = ""
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func loadConfig(fs afero.Fs, c *cli.Context) (*config.Config, error) {
	path := c.String("config-file")
	required := c.IsSet("config-file")
	cfg, err := config.LoadFromFile(fs, path, required, config.Environ())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load the configuration")
	}
	return cfg, nil
}

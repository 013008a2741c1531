package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitcats/internal/common/cache"
	"gitcats/internal/grading/environment"
	"gitcats/internal/grading/model"
	"gitcats/internal/grading/repository"
	"gitcats/internal/grading/sandbox/engine"
	"gitcats/internal/grading/service"
	appErr "gitcats/pkg/errors"
	"gitcats/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	exitFatal  = 2
	exitFailed = 1
)

type options struct {
	participant string
	skipDepends bool
	logLevel    string
	configDir   string
	appConfig   string
	timeout     string
	reportPath  string
	markChecked bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("gitcats", flag.ContinueOnError)
	fs.StringVar(&opts.participant, "participant", "", "Account name of the participant whose submissions are tested")
	fs.BoolVar(&opts.skipDepends, "skip-depends", false, "Do not create language environments")
	fs.StringVar(&opts.logLevel, "loglevel", "", "Log level: DEBUG, INFO, WARNING or ERROR")
	fs.StringVar(&opts.configDir, "config-dir", ".", "Directory holding assignments.yml, languages.yml, participants.yml and submissions.yml")
	fs.StringVar(&opts.appConfig, "app-config", "", "Optional YAML file with logger, environment, runner, redis and report settings")
	fs.StringVar(&opts.timeout, "timeout", "", "Default test timeout (seconds or duration)")
	fs.StringVar(&opts.reportPath, "report", "", "Write a JSON report to this path (.zst compresses it)")
	fs.BoolVar(&opts.markChecked, "mark-checked", false, "Record submissions whose required tests pass; unchanged ones are skipped later")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.participant == "" {
		return opts, fmt.Errorf("-participant is required")
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFatal
	}

	appCfg, err := loadAppConfig(opts.appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return exitFatal
	}
	if opts.logLevel != "" {
		appCfg.Logger.Level = opts.logLevel
	}
	if opts.timeout != "" {
		timeout, err := model.ParseTimeout(opts.timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -timeout: %v\n", err)
			return exitFatal
		}
		appCfg.Runner.DefaultTimeout = Duration(timeout)
	}
	if opts.reportPath != "" {
		appCfg.Report.Path = opts.reportPath
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return exitFatal
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := model.Load(opts.configDir)
	if err != nil {
		logConfigError(ctx, err)
		return appErr.GetCode(err).ExitCode()
	}

	eng, err := engine.NewEngine(appCfg.Runner.toEngineConfig())
	if err != nil {
		logger.Error(ctx, "init shell engine failed", zap.Error(err))
		return exitFailed
	}
	envs, err := environment.NewManager(eng, appCfg.Environment)
	if err != nil {
		logConfigError(ctx, err)
		return appErr.GetCode(err).ExitCode()
	}

	var checked *repository.CheckedRepository
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(ctx, &appCfg.Redis.RedisConfig)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return exitFailed
		}
		defer func() {
			_ = redisCache.Close()
		}()
		checked = repository.NewCheckedRepository(redisCache, time.Duration(appCfg.Redis.MarkerTTL))
	} else if opts.markChecked {
		logger.Warn(ctx, "-mark-checked needs redis.addr in the app config; markers are not stored")
	}

	svc, err := service.NewService(service.Config{
		Model:          cfg,
		Engine:         eng,
		Environments:   envs,
		Checked:        checked,
		Participant:    opts.participant,
		SkipDepends:    opts.skipDepends,
		MarkChecked:    opts.markChecked,
		DefaultTimeout: time.Duration(appCfg.Runner.DefaultTimeout),
		WorkRoot:       appCfg.Runner.WorkRoot,
		ReportPath:     appCfg.Report.Path,
		Out:            os.Stdout,
	})
	if err != nil {
		logger.Error(ctx, "init grading service failed", zap.Error(err))
		return exitFailed
	}

	code, err := svc.Execute(ctx)
	if err != nil {
		logger.Error(ctx, "grading run failed", zap.Error(err))
		return exitFailed
	}
	return code
}

func logConfigError(ctx context.Context, err error) {
	e := appErr.GetError(err)
	fields := []zap.Field{zap.String("code", e.Code.Message())}
	if loc := e.Location(); loc != "" {
		fields = append(fields, zap.String("location", loc))
	}
	logger.Error(ctx, e.Error(), fields...)
}

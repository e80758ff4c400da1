package common

import (
	"github.com/lavanet/ledgerclient/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	RollingLogLevelFlag        = "rolling-log-level"
	RollingLogMaxSizeFlag      = "rolling-log-max-size"
	RollingLogMaxAgeFlag       = "rolling-log-max-age"
	RollingLogBackupsFlag      = "rolling-log-backups"
	RollingLogFileLocationFlag = "rolling-log-file-location"
	RollingLogFormat           = "rolling-log-format"
)

const (
	defaultRollingLogState        = "off"
	defaultRollingLogMaxSize      = 100 // MB
	defaultRollingLogMaxAge       = 1   // days
	defaultRollingLogFileBackups  = 3
	defaultRollingLogFileLocation = "logs/ledgerclient.log"
	defaultRollingLogFormat       = "json"
)

// AddRollingLogConfig registers the rolling file log flags. When enabled the default keeps
// 3 files of 100MB for up to 1 day.
func AddRollingLogConfig(cmd *cobra.Command) {
	cmd.PersistentFlags().String(RollingLogLevelFlag, defaultRollingLogState, "rolling-log info level (off, debug, info, warn, error, fatal)")
	cmd.PersistentFlags().Int(RollingLogMaxSizeFlag, defaultRollingLogMaxSize, "rolling-log max size in MB")
	cmd.PersistentFlags().Int(RollingLogMaxAgeFlag, defaultRollingLogMaxAge, "max age in days")
	cmd.PersistentFlags().Int(RollingLogBackupsFlag, defaultRollingLogFileBackups, "Keep up to X (number) old log files before purging")
	cmd.PersistentFlags().String(RollingLogFileLocationFlag, defaultRollingLogFileLocation, "where to store the rolling logs e.g /logs/ledgerclient.log")
	cmd.PersistentFlags().String(RollingLogFormat, defaultRollingLogFormat, "rolling log format (json, text)")
}

func SetupRollingLogger() (func(), error) {
	return utils.RollingLoggerSetup(
		viper.GetString(RollingLogLevelFlag),
		viper.GetString(RollingLogFileLocationFlag),
		viper.GetInt(RollingLogMaxSizeFlag),
		viper.GetInt(RollingLogBackupsFlag),
		viper.GetInt(RollingLogMaxAgeFlag),
		viper.GetString(RollingLogFormat),
	)
}

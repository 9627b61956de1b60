package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/JiscSD/ram-relationships/model"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const defaultConfig = `# RAM relationships

################################## LOGGING ####################################

[logging]

#
# Logging verbosity level.
# Supported values: "DEBUG", "INFO", "WARN", "ERROR", "FATAL" or "PANIC".
#
level = "INFO"

#
# Output format.
# Supported values: "text", "json" or "logfmt".
#
format = "text"

################################## SERVER #####################################

[server]

#
# Address of the relationships API.
#
addr = ":8080"

#
# Address of the metrics, health and profiling server.
#
metrics_addr = ":6060"

################################## STORE ######################################

[store]

#
# Supported values: "memory" or "dynamodb".
#
# The memory backend loses its contents when the server stops.
#
backend = "memory"

#
# DynamoDB tables.
#
party_table = "ram_party"
relationship_table = "ram_relationship"
identity_table = "ram_identity"
agency_table = "ram_agency"

################################## INVITATION #################################

[invitation]

#
# Days an invitation code can be claimed for.
#
expiry_days = 7

#
# Length of the generated invitation codes (max. 32).
#
code_length = 10

################################## REGISTRY ###################################

[registry]

#
# How often the agencies are reloaded from the agency table.
#
reload_frequency = "1m"

################################## NOTIFICATIONS ##############################

[notifications]

#
# AWS SNS topic ARN, e.g. "arn:aws:sns:us-east-2:444455556666:ram-events".
#
# Relationship events are not published when empty.
#
topic_arn = ""

################################## ARCHIVE ####################################

[archive]

#
# S3 bucket where purged parties are archived.
#
bucket = ""

################################## AWS ########################################

[aws]

s3_profile = ""
s3_endpoint = ""

dynamodb_profile = ""
dynamodb_endpoint = ""

sns_profile = ""
sns_endpoint = ""
`

// configFs is where configuration files are looked up.
var configFs = afero.NewOsFs()

const (
	backendMemory   = "memory"
	backendDynamoDB = "dynamodb"
)

// AgencyConfig seeds the agency registry when the memory backend is used.
type AgencyConfig struct {
	ID       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	Programs []string `mapstructure:"programs"`
}

func (a AgencyConfig) agency() model.Agency {
	agency := model.Agency{ID: model.EntityID(a.ID), Name: a.Name}
	for _, name := range a.Programs {
		agency.LegislativePrograms = append(agency.LegislativePrograms, model.LegislativeProgram{Name: name})
	}
	return agency
}

type Config struct {
	v *viper.Viper

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Server struct {
		Addr        string `mapstructure:"addr"`
		MetricsAddr string `mapstructure:"metrics_addr"`
	} `mapstructure:"server"`

	Store struct {
		Backend           string `mapstructure:"backend"`
		PartyTable        string `mapstructure:"party_table"`
		RelationshipTable string `mapstructure:"relationship_table"`
		IdentityTable     string `mapstructure:"identity_table"`
		AgencyTable       string `mapstructure:"agency_table"`
	} `mapstructure:"store"`

	Invitation struct {
		ExpiryDays int `mapstructure:"expiry_days"`
		CodeLength int `mapstructure:"code_length"`
	} `mapstructure:"invitation"`

	Registry struct {
		ReloadFrequency time.Duration `mapstructure:"reload_frequency"`
	} `mapstructure:"registry"`

	Notifications struct {
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"notifications"`

	Archive struct {
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"archive"`

	Agencies []AgencyConfig `mapstructure:"agencies"`

	AWS struct {
		S3Profile        string `mapstructure:"s3_profile"`
		S3Endpoint       string `mapstructure:"s3_endpoint"`
		DynamoDBProfile  string `mapstructure:"dynamodb_profile"`
		DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
		SNSProfile       string `mapstructure:"sns_profile"`
		SNSEndpoint      string `mapstructure:"sns_endpoint"`
	} `mapstructure:"aws"`
}

func (c Config) Validate() error {
	var problems []string
	switch c.Logging.Format {
	case formatText, formatJSON, formatLogfmt:
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}
	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is empty")
	}
	switch c.Store.Backend {
	case backendMemory:
	case backendDynamoDB:
		for _, table := range []struct{ key, name string }{
			{"party_table", c.Store.PartyTable},
			{"relationship_table", c.Store.RelationshipTable},
			{"identity_table", c.Store.IdentityTable},
			{"agency_table", c.Store.AgencyTable},
		} {
			if table.name == "" {
				problems = append(problems, "store."+table.key+" is empty")
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not supported", c.Store.Backend))
	}
	if c.Invitation.ExpiryDays < 1 {
		problems = append(problems, "invitation.expiry_days must be positive")
	}
	if c.Invitation.CodeLength < 6 || c.Invitation.CodeLength > 32 {
		problems = append(problems, "invitation.code_length must be between 6 and 32")
	}
	if c.Registry.ReloadFrequency <= 0 {
		problems = append(problems, "registry.reload_frequency must be positive")
	}
	for i, a := range c.Agencies {
		if a.ID == "" {
			problems = append(problems, "agencies["+cast.ToString(i)+"].id is empty")
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) String() string {
	tmpfile, err := afero.TempFile(configFs, "", "config.*.toml")
	if err != nil {
		return err.Error()
	}
	tmpfile.Close()
	defer configFs.Remove(tmpfile.Name())
	err = c.v.WriteConfigAs(tmpfile.Name())
	if err != nil {
		return err.Error()
	}
	blob, err := afero.ReadFile(configFs, tmpfile.Name())
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func loadConfig(c *Config) error {
	v := viper.New()
	v.SetFs(configFs)

	v.SetEnvPrefix("RAM_RELATIONSHIPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ram-relationships")
	v.SetConfigType("toml")
	v.AddConfigPath("$HOME/.config/")
	v.AddConfigPath("/etc/ram/")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read our default configuration.
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		panic(err) // Not in the user path.
	}

	// Include configuration file provided by the user.
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return errors.Wrap(err, "configuration unmarshaling failed")
	}

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "config did not pass validation")
	}

	c.v = v

	return nil
}

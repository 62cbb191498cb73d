package catalog

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/cibox/internal/errors"
	"github.com/Iron-Ham/cibox/internal/pipeline"
)

// Settings parameterizes the standard pipelines.
type Settings struct {
	// GitURL is the credentialed clone URL. Required by clone_backend.
	GitURL       string
	Branch       string
	CheckoutDir  string
	Requirements string

	DBName        string
	DBUser        string
	DBPassword    string
	DBLocale      string
	DBServiceUnit string

	// SecretsDir is the host staging directory copied into the checkout.
	SecretsDir string
}

// DefaultSettings returns the settings of the reference sandbox.
func DefaultSettings() Settings {
	return Settings{
		Branch:        "develop",
		CheckoutDir:   "/root/quokky_backend",
		Requirements:  "requirements/dev.txt",
		DBName:        "quokky",
		DBUser:        "django",
		DBLocale:      "it_IT.UTF-8",
		DBServiceUnit: "postgresql@9.4-main",
		SecretsDir:    "/tmp/.secrets",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	setDefault(&s.Branch, d.Branch)
	setDefault(&s.CheckoutDir, d.CheckoutDir)
	setDefault(&s.Requirements, d.Requirements)
	setDefault(&s.DBName, d.DBName)
	setDefault(&s.DBUser, d.DBUser)
	setDefault(&s.DBLocale, d.DBLocale)
	setDefault(&s.DBServiceUnit, d.DBServiceUnit)
	setDefault(&s.SecretsDir, d.SecretsDir)
	if s.DBPassword == "" {
		s.DBPassword = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return s
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// Settings returns the effective settings, including the generated
// database password.
func (c *Catalog) Settings() Settings {
	return c.settings
}

// MongoConfigPath is the document store config patched by provision.
const MongoConfigPath = "/etc/mongodb.conf"

// gitURLHint is shown when GIT_URL is missing.
// CreateRoleStep labels the setup_backend step that applies the database
// password.
const CreateRoleStep = "create database role"

const gitURLHint = "export GIT_URL=https://<user>:<pass>@url/reponame.git"

func (c *Catalog) standard() []*Entry {
	s := c.settings
	return []*Entry{
		{
			Name:        Provision,
			Description: "Install all needed packages in the container",
			Build: func() pipeline.Pipeline {
				return pipeline.Pipeline{
					Name: Provision,
					Steps: []pipeline.Step{
						pipeline.Command("update package index", "apt-get", "update"),
						pipeline.Command("distribution upgrade", "apt-get", "dist-upgrade", "-y"),
						pipeline.Command("install python toolchain", "apt-get", "install", "-qy", "python-pip", "python-dev", "libffi-dev"),
						pipeline.Command("upgrade pip", "pip", "install", "--upgrade", "-q", "pip"),
						pipeline.Command("install virtualenv", "pip", "install", "--upgrade", "-q", "virtualenv"),
						pipeline.Command("install rabbitmq", "apt-get", "install", "-qy", "rabbitmq-server"),
						pipeline.Command("generate locale", "locale-gen", s.DBLocale),
						pipeline.Command("install postgresql", "apt-get", "install", "-qy", "postgresql", "postgresql-server-dev-all"),
						pipeline.Command("start postgresql", "service", "postgresql", "start"),
						pipeline.Command("start "+s.DBServiceUnit, "service", s.DBServiceUnit, "start"),
						pipeline.Command("install memcached, mongodb and git", "apt-get", "install", "-qy", "memcached", "mongodb-server", "git"),
						pipeline.Command("clean package cache", "apt-get", "clean", "-y"),
						pipeline.Local("enable mongodb smallfiles", c.appendToRootFS(MongoConfigPath, "\nsmallfiles = true\n")),
						pipeline.Command("start mongodb", "service", "mongodb", "start"),
					},
				}
			},
		},
		{
			Name:        CloneBackend,
			Description: "Clone the backend repository",
			Requires: []Dependency{{
				Pipeline:    Provision,
				Unless:      c.succeeds("git", "--version"),
				Description: "git is installed",
			}},
			Validate: func() error {
				if s.GitURL == "" {
					return errors.NewMissingConfigError("GIT_URL", gitURLHint)
				}
				return nil
			},
			Build: func() pipeline.Pipeline {
				return pipeline.Pipeline{
					Name:           CloneBackend,
					AbortOnFailure: true,
					Steps: []pipeline.Step{
						pipeline.Command("remove previous checkout", "rm", "-rf", s.CheckoutDir),
						pipeline.Command("clone "+s.Branch, "git", "clone", "-b", s.Branch, s.GitURL, s.CheckoutDir),
						pipeline.Local("copy secrets", c.copySecrets(s.SecretsDir, s.CheckoutDir+"/.secrets")),
					},
				}
			},
		},
		{
			Name:        SetupBackend,
			Description: "Install Python packages, init DB",
			Build: func() pipeline.Pipeline {
				return pipeline.Pipeline{
					Name: SetupBackend,
					Steps: []pipeline.Step{
						psql("drop database", "drop database "+s.DBName),
						psql("drop database role", "drop user "+s.DBUser),
						psql(CreateRoleStep,
							"create user "+s.DBUser+" with createdb password '"+s.DBPassword+"'"),
						psql("create database",
							"create database "+s.DBName+" with ENCODING 'UTF-8' LC_COLLATE='"+s.DBLocale+
								"' LC_CTYPE='"+s.DBLocale+"' template=template0 owner="+s.DBUser+";"),
						pipeline.Local("install requirements", c.inCheckout("pip", "install", "-r", s.Requirements)),
					},
				}
			},
		},
		{
			Name:        RunTests,
			Description: "Run tests and report coverage",
			Build: func() pipeline.Pipeline {
				return pipeline.Pipeline{
					Name: RunTests,
					Steps: []pipeline.Step{
						pipeline.Local("static code check", c.inCheckout("fab", "check")),
						pipeline.Local("tests", c.inCheckout("fab", "test:coverage=1")),
						pipeline.Local("coverage report", c.inCheckout("fab", "coverage_report")),
					},
				}
			},
		},
	}
}

func psql(label, sql string) pipeline.Step {
	return pipeline.Command(label, "sudo", "-u", "postgres", "psql", "-c", sql)
}

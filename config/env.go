package config

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// EnvLine is a single KEY=value assignment.
type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseEnvFile parses a dotenv file. A missing file yields no lines.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return []EnvLine{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseEnvBuffer(buf), nil
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ProcessEnvLine splits KEY=value, dropping an optional "export " prefix and
// surrounding quotes.
func ProcessEnvLine(line string) EnvLine {
	line = strings.TrimPrefix(line, "export ")
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return EnvLine{Key: strings.TrimSpace(line)}
	}
	return EnvLine{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

// ParseEnvBuffer parses dotenv content. ${NAME} and ${NAME:-default} refer to
// keys defined earlier in the buffer; ${env:NAME} reads the process environment.
func ParseEnvBuffer(buf []byte) []EnvLine {
	var envs []EnvLine
	vars := make(map[string]string)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		env := ProcessEnvLine(line)
		if env.Key == "" {
			continue
		}
		env.Val = interpolate(env.Val, vars)
		vars[env.Key] = env.Val
		envs = append(envs, env)
	}
	return envs
}

func interpolate(input string, vars map[string]string) string {
	if !strings.Contains(input, "${") {
		return input
	}
	var sb strings.Builder
	for {
		start := strings.Index(input, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(input[start:], '}')
		if end < 0 {
			break
		}
		end += start
		sb.WriteString(input[:start])
		ref := input[start : end+1]
		name, def, _ := strings.Cut(input[start+2:end], ":-")

		var val string
		if envKey, ok := strings.CutPrefix(name, "env:"); ok {
			val = os.Getenv(envKey)
		} else {
			val = vars[name]
		}
		switch {
		case name == "":
			sb.WriteString(ref)
		case val != "":
			sb.WriteString(val)
		case def != "":
			sb.WriteString(def)
		default:
			// unresolved references are kept verbatim
			sb.WriteString(ref)
		}
		input = input[end+1:]
	}
	sb.WriteString(input)
	return sb.String()
}

// FlagOrEnv returns the flag value when set, else the environment value, else def.
func FlagOrEnv(cmd *cobra.Command, flagName, envName, def string) string {
	if flagValue, _ := cmd.Flags().GetString(flagName); flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return def
}

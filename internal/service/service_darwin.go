//go:build darwin

package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN"
  "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Exe}}</string>
{{range .Args}}    <string>{{.}}</string>
{{end}}  </array>
  <key>WorkingDirectory</key>
  <string>{{.Dir}}</string>
  <key>EnvironmentVariables</key>
  <dict>
    <key>PATH</key>
    <string>{{.Path}}</string>
  </dict>
  <key>RunAtLoad</key>
  <true/>
{{if .KeepAlive}}  <key>KeepAlive</key>
  <true/>
{{else}}  <key>KeepAlive</key>
  <dict>
    <key>SuccessfulExit</key>
    <false/>
  </dict>
{{end}}  <key>StandardOutPath</key>
  <string>{{.LogFile}}</string>
  <key>StandardErrorPath</key>
  <string>{{.LogFile}}</string>
</dict>
</plist>
`))

type plistData struct {
	Label     string
	Exe       string
	Args      []string
	Dir       string
	Path      string
	KeepAlive bool
	LogFile   string
}

func agentsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("service: resolve home dir: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents"), nil
}

func plistPath(labelPrefix, dir string) (string, error) {
	agents, err := agentsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(agents, Label(labelPrefix, dir)+".plist"), nil
}

func install(spec Spec) error {
	agents, err := agentsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(agents, 0o755); err != nil {
		return fmt.Errorf("service: create %s: %w", agents, err)
	}

	path, err := plistPath(spec.LabelPrefix, spec.Dir)
	if err != nil {
		return err
	}

	data := plistData{
		Label:     Label(spec.LabelPrefix, spec.Dir),
		Exe:       spec.Exe,
		Args:      spec.Args,
		Dir:       spec.Dir,
		Path:      os.Getenv("PATH"),
		KeepAlive: spec.KeepAlive,
		LogFile:   spec.LogFile,
	}

	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("service: render plist: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("service: write %s: %w", path, err)
	}

	cmd := exec.Command("launchctl", "load", "-w", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("service: launchctl load: %w: %s", err, out)
	}
	return nil
}

func uninstall(labelPrefix, dir string) (bool, error) {
	path, err := plistPath(labelPrefix, dir)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	_ = exec.Command("launchctl", "unload", "-w", path).Run()
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("service: remove %s: %w", path, err)
	}
	return true, nil
}

func isInstalled(labelPrefix, dir string) bool {
	path, err := plistPath(labelPrefix, dir)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

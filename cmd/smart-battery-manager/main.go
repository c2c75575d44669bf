/*
smart-battery-manager - Manages smart battery packs on the power controller
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"strings"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/smart-battery-manager/battery"
	"github.com/TheCacophonyProject/smart-battery-manager/smbus"
	arg "github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const defaultPollInterval = 10 * time.Second

var (
	version = "<not set>"
	log     = logrus.New()
)

type Args struct {
	ConfigDir   string `arg:"-c,--config" help:"configuration folder"`
	PresencePin string `arg:"--presence-pin" help:"GPIO name of the battery presence line"`
	LogLevel    string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		ConfigDir:   goconfig.DefaultConfigDir,
		PresencePin: "GPIO24",
	}
	arg.MustParse(&args)
	return args
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err.Error())
	}
}

func runMain() error {
	log.SetFormatter(new(customFormatter))
	args := procArgs()
	setLogLevel(args.LogLevel)
	battery.SetLogger(log)

	log.Info("Running version: ", version)

	conf, err := goconfig.New(args.ConfigDir)
	if err != nil {
		return err
	}
	batteryConf := goconfig.DefaultBattery()
	if err := conf.Unmarshal(goconfig.BatteryKey, &batteryConf); err != nil {
		return fmt.Errorf("failed to load battery config: %w", err)
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return err
	}

	pin := gpioreg.ByName(args.PresencePin)
	if pin == nil {
		return fmt.Errorf("no GPIO named %q", args.PresencePin)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return err
	}

	catalog, err := battery.NewCatalog()
	if err != nil {
		return err
	}

	pack := smbus.New(bus, smbus.DefaultAddress)
	charger := newCharger(bus)
	mgr := battery.NewManager(pack, pin, charger, charger, smartBatteryProfile{}, catalog)

	poller := &poller{
		mgr:           mgr,
		bus:           pack,
		interval:      defaultPollInterval,
		reportVoltage: batteryConf.EnableVoltageReadings,
	}
	if err := startService(poller); err != nil {
		return err
	}

	poller.run()
	return nil
}

// smartBatteryProfile leaves the charging profile to the smart battery's own
// requests: no override and the default poll interval. The shared override
// algorithm runs in the charge task, not in this daemon.
type smartBatteryProfile struct{}

func (smartBatteryProfile) Override(*battery.Snapshot, *battery.FastChargeTable, *int, int) time.Duration {
	return 0
}

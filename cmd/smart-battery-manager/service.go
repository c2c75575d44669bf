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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.SmartBattery"
	dbusPath = "/org/cacophony/SmartBattery"
)

type service struct {
	poller *poller
}

func startService(p *poller) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		poller: p,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// PackName returns the manufacturer name of the active battery profile.
func (s service) PackName() (string, *dbus.Error) {
	s.poller.mu.Lock()
	defer s.poller.mu.Unlock()
	return s.poller.mgr.ActiveProfile().ManufacturerName, nil
}

// Presence returns the last validated battery presence.
func (s service) Presence() (string, *dbus.Error) {
	s.poller.mu.Lock()
	defer s.poller.mu.Unlock()
	return s.poller.lastPresence.String(), nil
}

// DisconnectState returns the last protection FET disconnect probe result.
func (s service) DisconnectState() (string, *dbus.Error) {
	s.poller.mu.Lock()
	defer s.poller.mu.Unlock()
	return s.poller.lastDisconnect.String(), nil
}

// CutOff sends the battery pack to ship mode. The pack disconnects itself
// from the system and will only wake when voltage is applied to it again.
func (s service) CutOff() *dbus.Error {
	s.poller.mu.Lock()
	defer s.poller.mu.Unlock()

	log.Info("Battery cut off requested over D-Bus")
	if err := s.poller.mgr.CutOff(); err != nil {
		log.Error(err)
		return makeDbusError(".CutOffError", err)
	}
	reportEvent("batteryCutOff", map[string]interface{}{
		"pack": s.poller.mgr.ActiveProfile().ManufacturerName,
	})
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}

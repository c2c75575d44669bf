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
	"sync"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/smart-battery-manager/battery"
	"github.com/TheCacophonyProject/smart-battery-manager/smbus"
)

// poller drives the manager once per tick. The manager itself is single
// writer by design; mu keeps the D-Bus service's calls from interleaving
// with a tick.
type poller struct {
	mu            sync.Mutex
	mgr           *battery.Manager
	bus           *smbus.Conn
	interval      time.Duration
	reportVoltage bool

	lastPack       battery.PackID
	lastPresence   battery.PresenceState
	lastDisconnect battery.DisconnectResult
}

func (p *poller) run() {
	for {
		hint := p.tick()
		if hint <= 0 {
			hint = p.interval
		}
		time.Sleep(hint)
	}
}

func (p *poller) tick() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id := p.mgr.Identify(); id != p.lastPack {
		p.lastPack = id
		reportEvent("batteryPackIdentified", map[string]interface{}{
			"pack": id.String(),
		})
	}

	presence := p.mgr.Presence()
	if presence != p.lastPresence {
		p.lastPresence = presence
		reportEvent("batteryPresence", map[string]interface{}{
			"presence": presence.String(),
			"stable":   p.mgr.Stable(),
		})
	}

	disconnect := p.mgr.DisconnectState()
	if disconnect != p.lastDisconnect {
		p.lastDisconnect = disconnect
		if disconnect != battery.NotDisconnected {
			reportEvent("batteryDisconnect", map[string]interface{}{
				"state": disconnect.String(),
			})
		}
	}

	curr := p.snapshot(presence)
	hint := p.mgr.ProfileOverride(curr)

	if p.reportVoltage {
		if mv, err := p.bus.ReadWord(smbus.RegVoltage); err == nil {
			log.Debugf("Battery: %dmV, %d%%, state %s", mv, curr.StateOfCharge, curr.State)
		}
	}

	return hint
}

// snapshot builds the charge loop's live view of the battery for this tick.
// A pack that cannot be read simply shows no flags, the manager treats that
// as a battery still waking up.
func (p *poller) snapshot(presence battery.PresenceState) *battery.Snapshot {
	curr := &battery.Snapshot{Presence: presence, State: battery.StateIdle}

	status, err := p.bus.ReadWord(smbus.RegBatteryStatus)
	if err != nil {
		return curr
	}
	curr.Status = status
	if status&battery.StatusInitialized != 0 && status&battery.StatusFullyCharged == 0 {
		curr.Flags |= battery.FlagWantCharge
		curr.State = battery.StateCharge
	}

	if soc, err := p.bus.ReadWord(smbus.RegRelativeStateOfCharge); err == nil {
		curr.StateOfCharge = int(soc)
	}
	return curr
}

func reportEvent(eventType string, details map[string]interface{}) {
	err := eventclient.AddEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		log.Errorf("Error sending %s event: %v", eventType, err)
	}
}

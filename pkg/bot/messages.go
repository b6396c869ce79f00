package bot

import (
	"fmt"
	"strings"

	"antalyabus/pkg/types"
)

const helpText = `1. To get buses, enter bus stop number:
   10010
2. To get a particular bus, add its number:
   10010 18 (here 18 - bus VS18)
3. To track this bus, add "t":
   10010 18 t (default tracking interval - 3 min)
4. To track with custom interval, add its value:
   10010 18 t 5
5. To stop tracking, send /stop
`

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi, %s!\nI will help you to find and track buses.\nUse /help to know how to do this.\n", name)
}

func stoppedMessage(n int) string {
	switch n {
	case 0:
		return "Nothing is being tracked."
	case 1:
		return "Stopped tracking 1 bus."
	default:
		return fmt.Sprintf("Stopped tracking %d buses.", n)
	}
}

// upcomingBuses renders one "<route> - <minutes> min" line per bus.
func upcomingBuses(buses []types.BusSnapshot) string {
	lines := make([]string, len(buses))
	for i, bus := range buses {
		lines[i] = fmt.Sprintf("%s - %d min", bus.RouteCode, bus.MinutesAway)
	}
	return strings.Join(lines, "\n")
}

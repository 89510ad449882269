package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gwillem/teachbot/pkg/session"
)

type PlayCommand struct {
	Speed float64 `short:"s" long:"speed" description:"Playback speed (default from config)"`
	Args  struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *PlayCommand) Execute(args []string) error {
	r, err := connect()
	if err != nil {
		return err
	}
	defer r.Close()

	status, err := r.session.Load(c.Args.File)
	if err != nil {
		return fmt.Errorf("%s: %w", status, err)
	}
	fmt.Println(status)

	speed := c.Speed
	if speed == 0 {
		speed = r.session.Speed()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, status, err = r.session.Play(speed); err != nil {
		return fmt.Errorf("%s: %w", status, err)
	}

	// Ctrl-C brakes instead of exiting; the task still reports its end.
	interrupted := ctx.Done()
	stopped := false
	for {
		select {
		case <-interrupted:
			interrupted = nil
			stopped = true
			status, _ := r.session.StopMotion(context.Background())
			fmt.Println(status)
		case ev, ok := <-r.session.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case session.Started:
				if ev.Plan != nil {
					fmt.Printf("Playing %d keyframes of %v over %.2fs\n", len(ev.Plan.Times), ev.Plan.Names, ev.Plan.Duration())
				}
			case session.Completed:
				fmt.Println(successStyle.Render(ev.Status))
				return nil
			case session.Failed:
				if stopped {
					fmt.Println(ev.Status)
					return nil
				}
				return fmt.Errorf("%s: %w", ev.Status, ev.Err)
			}
		}
	}
}

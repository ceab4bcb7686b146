// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"runtime"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/vizor/core"
	"github.com/devblok/vizor/vulkan"
)

func init() {
	runtime.LockOSThread()
}

// logTelemetry writes capability fields to the log instead of a
// telemetry service.
type logTelemetry struct{}

func (logTelemetry) AddField(category, key, value string) {
	log.WithField("category", category).WithField(key, value).Debug("telemetry")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded: " + err.Error())
	}
	configuration := core.FromEnvironment()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		panic(err)
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		panic(err)
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := newSdlWindow(1280, 720)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	source := newPatternSource()
	backend := vulkan.NewRenderer(window, source, source, logTelemetry{}, configuration.Renderer)
	if !backend.Init() {
		panic("display backend failed to initialise")
	}
	defer backend.ShutDown()

	time := core.NewTime(configuration.Time)
	defer time.Stop()
	exitC := make(chan struct{}, 2)

EventLoop:
	for {
		select {
		case <-exitC:
			log.Info("Event loop exited")
			break EventLoop
		case <-time.FpsTicker().C:
			var event sdl.Event
			for event = sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						exitC <- struct{}{}
						continue EventLoop
					}
				case *sdl.QuitEvent:
					exitC <- struct{}{}
					continue EventLoop
				}
			}
			backend.SwapBuffers(source.NextFrame())
		}
	}
}

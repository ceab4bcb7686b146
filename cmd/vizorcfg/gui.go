// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"strconv"

	"github.com/gobuffalo/packr"
	"github.com/gotk3/gotk3/glib"
	"github.com/gotk3/gotk3/gtk"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/vizor/vulkan"
)

const deviceIndexKey = "VIZOR_DEVICE_INDEX"

// Global variables for GTK and resources
var (
	Builder         *gtk.Builder
	StaticResources packr.Box
)

func init() {
	StaticResources = packr.NewBox("./resources")
}

func buildInterface() (*gtk.Application, error) {
	app, err := gtk.ApplicationNew("org.devblok.vizorcfg", glib.APPLICATION_FLAGS_NONE)
	if err != nil {
		return nil, err
	}

	app.Connect("startup", func() {
		log.Info("Application starting")
	})

	app.Connect("activate", func() {
		log.Info("Application activating")

		resource, err := StaticResources.FindString("vizorcfg.glade")
		if err != nil {
			log.Fatal(err)
			panic(err)
		}

		builder, err := gtk.BuilderNew()
		builder.AddFromString(resource)
		if err != nil {
			log.Error(err)
			panic(err)
		}

		Builder = builder

		deviceList, err := comboBox(builder, "deviceList")
		if err != nil {
			log.Fatal(err)
			panic(err)
		}
		for _, name := range vulkan.EnumerateDevices() {
			deviceList.AppendText(name)
		}
		deviceList.SetActive(0)

		saveButton, err := button(builder, "saveButton")
		if err != nil {
			log.Fatal(err)
			panic(err)
		}
		saveButton.Connect("clicked", func() {
			if err := persistDeviceIndex(deviceList.GetActive()); err != nil {
				log.Error(err)
				return
			}
			app.Quit()
		})

		obj, err := builder.GetObject("mainWindow")
		if err != nil {
			log.Error(err)
		}

		var (
			ok  bool
			win *gtk.Window
		)

		if win, ok = obj.(*gtk.Window); !ok {
			log.Error(errors.New("failed to cast Object from builder to Window"))
		} else {
			win.SetDefaultSize(480, 160)

			win.ShowAll()
			app.AddWindow(win)
		}
	})

	app.Connect("shutdown", func() {
		log.Info("Application shutting down")
	})
	return app, nil
}

func comboBox(builder *gtk.Builder, name string) (*gtk.ComboBoxText, error) {
	obj, err := builder.GetObject(name)
	if err != nil {
		return nil, err
	}
	box, ok := obj.(*gtk.ComboBoxText)
	if !ok {
		return nil, errors.New("failed to cast Object from builder to ComboBoxText")
	}
	return box, nil
}

func button(builder *gtk.Builder, name string) (*gtk.Button, error) {
	obj, err := builder.GetObject(name)
	if err != nil {
		return nil, err
	}
	btn, ok := obj.(*gtk.Button)
	if !ok {
		return nil, errors.New("failed to cast Object from builder to Button")
	}
	return btn, nil
}

// persistDeviceIndex merges the chosen index into .env, keeping every
// other variable already there.
func persistDeviceIndex(index int) error {
	if index < 0 {
		return errors.New("no device selected")
	}

	env, err := godotenv.Read()
	if err != nil {
		env = map[string]string{}
	}
	env[deviceIndexKey] = strconv.Itoa(index)
	return godotenv.Write(env, ".env")
}

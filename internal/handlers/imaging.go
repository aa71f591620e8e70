package handlers

import (
	"errors"
	"net/http"

	"remote_imaging/internal/models"
	"remote_imaging/internal/repository"
	"remote_imaging/internal/service"

	"github.com/gin-gonic/gin"
)

// Message types of the API envelope.
const (
	msgNone    = "None"
	msgError   = "Error"
	msgWarning = "Warning"
	msgMessage = "Message"
	msgSuccess = "Success"
)

// Message carries extra info about the status of a call.
type Message struct {
	MessageText string `json:"MessageText"`
	Type        string `json:"Type"` // None | Error | Warning | Message | Success
}

// Response is the envelope returned by every imaging endpoint.
type Response struct {
	Values  []string `json:"Values"`
	Message Message  `json:"Message"`
}

func envelope(values []string, typ, text string) Response {
	if values == nil {
		values = []string{}
	}
	return Response{Values: values, Message: Message{MessageText: text, Type: typ}}
}

// respond writes the envelope; imaging endpoints always answer 200 and encode
// the outcome in the Message type, matching the interface contract.
func respond(c *gin.Context, values []string, typ, text string) {
	c.JSON(http.StatusOK, envelope(values, typ, text))
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      Overall gateway status
// @Description  Returns "busy" with the in-flight trigger id, or "idle"
// @Tags         imaging
// @Produce      json
// @Success      200  {object}  Response
// @Router       /status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st := h.services.Gateway.Status()
	if st.State == "busy" {
		respond(c, []string{st.TriggerID}, msgMessage, "busy")
		return
	}
	respond(c, nil, msgMessage, "idle")
}

// @Summary      List available settings files
// @Tags         imaging
// @Produce      json
// @Success      200  {object}  Response
// @Router       /settings [get]
func (h *Handler) getSettings(c *gin.Context) {
	respond(c, h.services.Gateway.SettingsList(), msgNone, "")
}

// @Summary      Apply a settings file for the next imaging task
// @Tags         imaging
// @Produce      json
// @Param        name  path  string  true  "Name of settings file"
// @Success      200  {object}  Response
// @Router       /settings/{name} [put]
func (h *Handler) setSettings(c *gin.Context) {
	name := c.Param("name")
	if err := h.services.Gateway.SetSettings(name); err != nil {
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, nil, msgSuccess, "")
}

// @Summary      Set metadata for the next imaging task
// @Tags         imaging
// @Accept       json
// @Produce      json
// @Param        body  body  models.ImagingMetadata  true  "Plant metadata"
// @Success      200  {object}  Response
// @Router       /metadata [post]
func (h *Handler) setMetadata(c *gin.Context) {
	var meta models.ImagingMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		respond(c, nil, msgError, "invalid metadata: "+err.Error())
		return
	}
	if err := h.services.Gateway.SetMetadata(meta); err != nil {
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, nil, msgSuccess, "")
}

// @Summary      Trigger a new imaging task
// @Tags         imaging
// @Produce      json
// @Param        plantid  path  string  true  "ID of the plant to be imaged"
// @Success      200  {object}  Response
// @Router       /trigger/{plantid} [put]
func (h *Handler) trigger(c *gin.Context) {
	plantID := c.Param("plantid")

	triggerID, err := h.services.Gateway.SubmitTrigger(plantID)
	if err != nil {
		// A plant id mismatch is warning-class: reported, but not a failure.
		if errors.Is(err, service.ErrPlantMismatch) {
			respond(c, nil, msgWarning, err.Error())
			return
		}
		if h.log != nil {
			h.log.Errorw("trigger_submit_failed", "plant_id", plantID, "err", err)
		}
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, []string{triggerID}, msgSuccess, "")
}

// @Summary      Status of a previously triggered plant
// @Tags         imaging
// @Produce      json
// @Param        triggerid  path  string  true  "ID provided by the Trigger call"
// @Success      200  {object}  Response
// @Router       /status/{triggerid} [get]
func (h *Handler) getTriggerStatus(c *gin.Context) {
	state, ok := h.services.Gateway.TriggerStatus(c.Param("triggerid"))
	if !ok {
		respond(c, nil, msgMessage, "invalid")
		return
	}
	respond(c, nil, msgMessage, state)
}

// @Summary      Get the id of the taken image
// @Tags         imaging
// @Produce      json
// @Param        triggerid  path  string  true  "ID provided by the Trigger call"
// @Success      200  {object}  Response
// @Router       /getimageid/{triggerid} [get]
func (h *Handler) getImageID(c *gin.Context) {
	imageID, err := h.services.Gateway.ImageID(c.Param("triggerid"))
	if err != nil {
		if errors.Is(err, repository.ErrTriggerNotFound) {
			respond(c, nil, msgError, "Invalid trigger ID")
			return
		}
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, []string{imageID}, msgSuccess, "")
}

// @Summary      Register for notifications when images are taken
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        body  body  models.Subscriber  true  "Callback registration"
// @Success      200  {object}  Response
// @Router       /register [post]
func (h *Handler) register(c *gin.Context) {
	var sub models.Subscriber
	if err := c.ShouldBindJSON(&sub); err != nil {
		respond(c, nil, msgError, "invalid registration: "+err.Error())
		return
	}
	if err := h.services.Notifier.Register(sub); err != nil {
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, nil, msgSuccess, "")
}

// @Summary      Unregister a client from receiving notifications
// @Tags         notifications
// @Produce      json
// @Param        ClientName  query  string  true  "Name of the registered client"
// @Success      200  {object}  Response
// @Router       /unregister [post]
func (h *Handler) unregister(c *gin.Context) {
	clientName := c.Query("ClientName")
	if clientName == "" {
		respond(c, nil, msgError, "ClientName is required")
		return
	}
	if err := h.services.Notifier.Unregister(clientName); err != nil {
		respond(c, nil, msgError, err.Error())
		return
	}
	respond(c, nil, msgSuccess, "")
}

package anim

// ARKitChannels lists the ARKit-style blendshape channel names produced
// by the upstream audio-to-face pipeline. The decoder does not restrict
// payloads to this set; it exists for simulators and test fixtures.
var ARKitChannels = []string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
}

var arkitChannelSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ARKitChannels))
	for _, name := range ARKitChannels {
		set[name] = struct{}{}
	}
	return set
}()

// IsARKitChannel reports whether name is one of the standard channels.
func IsARKitChannel(name string) bool {
	_, ok := arkitChannelSet[name]
	return ok
}

// NeutralWeights returns a weight map with every given channel at zero.
func NeutralWeights(channels []string) map[string]float64 {
	out := make(map[string]float64, len(channels))
	for _, name := range channels {
		out[name] = 0
	}
	return out
}

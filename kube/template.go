package kube

import (
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Labels and ports shared by every serving workload.
const (
	LabelApp          = "app"
	LabelWorkloadType = "modelflow.ai/workload-type"

	WorkloadTypeServing = "online-serving"

	ServingContainerName = "serving"
	ServingPortName      = "model-serving-port"
	// Port the serving process listens on inside the pod.
	ServingContainerPort int32 = 8080
	// Port the in-cluster service exposes.
	ServingServicePort int32 = 80
)

// ServingSelector returns the label selector matching every workload
// managed by this controller.
func ServingSelector() map[string]string {
	return map[string]string{LabelWorkloadType: WorkloadTypeServing}
}

// RenderServingWorkload renders the single-replica StatefulSet for a
// serving instance. The env bundle is sorted by key so the rendered
// object is deterministic for identical inputs.
func RenderServingWorkload(name, image string, env map[string]string) *appsv1.StatefulSet {
	one := int32(1)
	podLabels := map[string]string{
		LabelApp:          name,
		LabelWorkloadType: WorkloadTypeServing,
	}

	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: podLabels,
		},
		Spec: appsv1.StatefulSetSpec{
			Replicas:    &one,
			ServiceName: name,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{LabelApp: name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: podLabels,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  ServingContainerName,
							Image: image,
							Env:   sortedEnv(env),
							Ports: []corev1.ContainerPort{
								{
									Name:          ServingPortName,
									ContainerPort: ServingContainerPort,
									Protocol:      corev1.ProtocolTCP,
								},
							},
						},
					},
				},
			},
		},
	}
}

// BuildServingService builds the Service for a deployed workload. The
// service carries an owner reference to the StatefulSet so the
// orchestrator's cascade delete removes it whenever the workload is
// deleted; the controller never deletes services directly.
func BuildServingService(ss *appsv1.StatefulSet) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name: ss.Name,
			Labels: map[string]string{
				LabelWorkloadType: WorkloadTypeServing,
			},
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: "apps/v1",
					Kind:       "StatefulSet",
					Name:       ss.Name,
					UID:        ss.UID,
				},
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{LabelApp: ss.Name},
			Ports: []corev1.ServicePort{
				{
					Name:       ServingPortName,
					Protocol:   corev1.ProtocolTCP,
					Port:       ServingServicePort,
					TargetPort: intstr.FromInt32(ServingContainerPort),
				},
			},
		},
	}
}

func sortedEnv(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}
